// Package dest writes work items into the destination system. The migration
// driver depends only on the Client interface; the Azure DevOps
// implementation is the thin HTTP wrapper behind it.
package dest

import (
	"github.com/lherron/wrkmig/internal/domain"
)

// Client is the driver's view of the destination work-tracking system.
type Client interface {
	// CreateRecord creates a work item of the category's type from a sparse
	// field payload and returns its destination ID. Creation bypasses
	// workflow validation: migrated records carry historical, possibly
	// workflow-inconsistent states and dates.
	CreateRecord(project string, category domain.Category, payload *domain.FieldPayload) (int, error)

	// UploadAttachment stores the content and returns a reference URL
	// usable in an AttachedFile relation.
	UploadAttachment(project, filename string, content []byte) (string, error)

	// AppendComment adds a comment to an existing work item.
	AppendComment(destID int, text string) error

	// RecordURL returns the canonical URL of a created work item, used when
	// building parent link relations.
	RecordURL(destID int) string
}
