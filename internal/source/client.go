// Package source reads records out of the source issue tracker. The migration
// driver depends only on the Client interface; the Jira implementation is the
// thin HTTP wrapper behind it.
package source

import (
	"time"

	"github.com/lherron/wrkmig/internal/domain"
)

// Client is the driver's view of the source tracker.
type Client interface {
	// QueryRecords returns up to limit records for the project created
	// strictly after createdAfter, oldest first. An empty slice means the
	// source is exhausted.
	QueryRecords(project string, createdAfter time.Time, limit int) ([]domain.SourceRecord, error)

	// GetComments returns the record's comments in original order.
	GetComments(recordID string) ([]domain.Comment, error)

	// GetAttachments returns the record's attachments in original order,
	// content included.
	GetAttachments(recordID string) ([]domain.Attachment, error)
}
