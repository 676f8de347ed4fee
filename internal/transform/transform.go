// Package transform builds destination creation payloads from source records.
// Payloads are sparse: a field is written only when the source carries a
// value for it, so the destination API never receives null writes.
package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/lherron/wrkmig/internal/checkpoint"
	"github.com/lherron/wrkmig/internal/dest"
	"github.com/lherron/wrkmig/internal/domain"
	"github.com/lherron/wrkmig/internal/mapping"
)

// Transformer assembles one creation payload per source record. Parent links
// resolve through the checkpoint store; attachment uploads go through the
// destination client as the payload is built.
type Transformer struct {
	mapper      *mapping.Mapper
	checkpoints *checkpoint.Store
	dest        dest.Client
	project     string // destination project name
}

// New creates a transformer for the destination project.
func New(mapper *mapping.Mapper, checkpoints *checkpoint.Store, destClient dest.Client, project string) *Transformer {
	return &Transformer{
		mapper:      mapper,
		checkpoints: checkpoints,
		dest:        destClient,
		project:     project,
	}
}

// Build produces the creation payload for one record. Attachments are
// uploaded one at a time in source order; any upload failure aborts the
// whole record, so a partially attached record is never created.
func (t *Transformer) Build(rec *domain.SourceRecord, category domain.Category, attachments []domain.Attachment) (*domain.FieldPayload, error) {
	payload := &domain.FieldPayload{}

	payload.Set(domain.FieldTitle, t.title(rec, category))
	payload.Set(domain.FieldDescription, rec.Description)

	state, err := t.mapper.ResolveState(category, rec.Status)
	if err != nil {
		return nil, err
	}
	payload.Set(domain.FieldState, state)

	if rec.Priority != "" {
		rank, err := t.mapper.ResolvePriority(rec.Priority)
		if err != nil {
			return nil, err
		}
		payload.Set(domain.FieldPriority, rank)
	}

	created := rec.Created.UTC().Format(time.RFC3339)
	payload.Set(domain.FieldCreatedDate, created)
	payload.Set(domain.FieldChangedDate, created)
	payload.Set(domain.FieldCreatedBy, t.mapper.ResolveUser(rec.Creator))

	if rec.Resolved != nil {
		resolved := rec.Resolved.UTC().Format(time.RFC3339)
		payload.Set(domain.FieldClosedDate, resolved)
		switch category {
		case domain.CategoryBug:
			payload.Set(domain.FieldResolvedDate, resolved)
			payload.Set(domain.FieldResolvedReason, rec.Resolution)
		case domain.CategoryBacklogItem:
			payload.Set(domain.FieldFinishDate, resolved)
			payload.Set(domain.FieldResolvedReason, rec.Resolution)
		}
	}

	if rec.Assignee != "" {
		payload.Set(domain.FieldAssignedTo, t.mapper.ResolveUser(rec.Assignee))
	}

	if rec.StoryPoints != nil {
		payload.Set(t.effortField(category), *rec.StoryPoints)
	}

	payload.Set(domain.FieldAreaPath, t.mapper.ResolveAreaPath(rec.Team, t.project))
	payload.Set(domain.FieldIterationPath, t.mapper.ResolveIteration(rec.Sprints, t.project))
	payload.Set(domain.FieldTags, joinTags(rec.Labels))

	if parentKey := rec.ParentKey(); parentKey != "" {
		parentID, ok := t.checkpoints.Lookup(parentKey)
		if !ok {
			// Creation-order processing should have migrated the parent
			// already; a miss is an ordering violation, not a linkable state.
			return nil, &domain.ParentNotMigratedError{SourceID: rec.ID, ParentID: parentKey}
		}
		payload.AddRelation(domain.RelationParent, t.dest.RecordURL(parentID))
	}

	for _, att := range attachments {
		url, err := t.dest.UploadAttachment(t.project, att.Filename, att.Content)
		if err != nil {
			return nil, &domain.TransferError{
				Op:  fmt.Sprintf("upload attachment %s for %s", att.Filename, rec.ID),
				Err: err,
			}
		}
		payload.AddRelation(domain.RelationAttachedFile, url)
	}

	return payload, nil
}

// title selects the destination title. The feature category borrows the
// dedicated epic name attribute and falls back to the summary when absent.
func (t *Transformer) title(rec *domain.SourceRecord, category domain.Category) string {
	if category == domain.CategoryFeature && rec.EpicName != "" {
		return rec.EpicName
	}
	return rec.Summary
}

// effortField returns the per-category estimate field.
func (t *Transformer) effortField(category domain.Category) string {
	switch category {
	case domain.CategoryTask:
		return domain.FieldRemainingWork
	case domain.CategoryFeature, domain.CategoryBug, domain.CategoryBacklogItem:
		return domain.FieldEffort
	default:
		return domain.FieldStoryPoints
	}
}

// joinTags joins labels with the destination tag separator, dropping blank
// entries and trimming surrounding whitespace.
func joinTags(labels []string) string {
	var tags []string
	for _, label := range labels {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return strings.Join(tags, ";")
}
