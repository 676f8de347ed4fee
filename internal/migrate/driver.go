// Package migrate drives the record-by-record transfer. Records are
// processed strictly sequentially in creation-time order: the
// parent-before-child invariant depends on parents (created earlier) being
// checkpointed before any child's creation is attempted, so there is no
// concurrency here by design.
package migrate

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/lherron/wrkmig/internal/checkpoint"
	"github.com/lherron/wrkmig/internal/dest"
	"github.com/lherron/wrkmig/internal/domain"
	"github.com/lherron/wrkmig/internal/source"
	"github.com/lherron/wrkmig/internal/transform"
)

// typeCategories maps source record type names to destination categories.
// An unrecognized type fails that record only.
var typeCategories = map[string]domain.Category{
	"Epic":        domain.CategoryFeature,
	"Bug":         domain.CategoryBug,
	"Story":       domain.CategoryBacklogItem,
	"Improvement": domain.CategoryBacklogItem,
	"New Feature": domain.CategoryBacklogItem,
	"Task":        domain.CategoryTask,
	"Sub-task":    domain.CategoryTask,
	"Chore":       domain.CategoryTask,
}

// CategoryFor returns the destination category for a source type name.
func CategoryFor(typeName string) (domain.Category, error) {
	category, ok := typeCategories[typeName]
	if !ok {
		return "", &domain.UnsupportedTypeError{Type: typeName}
	}
	return category, nil
}

// Options configures one migration run.
type Options struct {
	SourceProject string
	DestProject   string
	PageSize      int
	// StartAfter seeds the pagination cursor; zero starts from the beginning.
	StartAfter time.Time
	// DryRun transforms records without creating, uploading, or commenting.
	DryRun bool
	// RunID identifies the run in logs, events, and provenance comments.
	// Generated when empty. Callers wiring an EventWriter pass the same ID
	// to both.
	RunID string
	// Out receives the per-record log lines.
	Out io.Writer
}

// Failure describes one record-scoped failure.
type Failure struct {
	SourceID string
	Type     string
	Err      error
}

// Planned is one record a dry run would have created.
type Planned struct {
	SourceID string
	Category domain.Category
	Payload  *domain.FieldPayload
}

// Result summarizes a run. Created, Skipped, and Failed partition the
// processed records; CommentsFailed counts created records whose comment
// transfer failed afterwards, so it overlaps Created, never Failed.
type Result struct {
	RunID          string
	Created        int
	Skipped        int
	Failed         int
	CommentsFailed int
	Failures       []Failure
	Planned        []Planned
	// Cursor marks the last processed record, for restarting a later run.
	Cursor *source.Cursor
}

// Driver executes the migration pipeline.
type Driver struct {
	source      source.Client
	dest        dest.Client
	checkpoints *checkpoint.Store
	transformer *transform.Transformer
	events      *checkpoint.EventWriter
	opts        Options
	runID       string
}

// New creates a driver. events may be nil (dry runs write no audit rows).
func New(src source.Client, dst dest.Client, checkpoints *checkpoint.Store, transformer *transform.Transformer, events *checkpoint.EventWriter, opts Options) *Driver {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	return &Driver{
		source:      src,
		dest:        dst,
		checkpoints: checkpoints,
		transformer: transformer,
		events:      events,
		opts:        opts,
		runID:       opts.RunID,
	}
}

// RunID returns the identifier stamped on this run's logs, events, and
// provenance comments.
func (d *Driver) RunID() string {
	return d.runID
}

// Run pages through the source oldest first and processes every record.
// Record-scoped failures are logged and skipped past; only a checkpoint
// store failure aborts the run.
func (d *Driver) Run() (*Result, error) {
	res := &Result{RunID: d.runID}
	cursor := d.opts.StartAfter

	for {
		page, err := d.source.QueryRecords(d.opts.SourceProject, cursor, d.opts.PageSize)
		if err != nil {
			// The very first query failing means nothing was processed;
			// surface it rather than reporting a clean empty run.
			return res, &domain.TransferError{Op: "query source records", Err: err}
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			rec := &page[i]
			cursor = rec.Created
			res.Cursor = &source.Cursor{
				Project:     d.opts.SourceProject,
				LastCreated: rec.Created,
				LastID:      rec.ID,
			}

			if err := d.processRecord(rec, res); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// processRecord handles one record end to end. The returned error is fatal;
// record-scoped failures are absorbed into the result.
func (d *Driver) processRecord(rec *domain.SourceRecord, res *Result) error {
	if destID, ok := d.checkpoints.Lookup(rec.ID); ok {
		res.Skipped++
		fmt.Fprintf(d.opts.Out, "%s: skipped (already migrated as %d)\n", rec.ID, destID)
		d.logEvent(func(ew *checkpoint.EventWriter) error {
			return ew.LogSkipped(rec.ID, destID)
		})
		return nil
	}

	category, err := CategoryFor(rec.Type)
	if err != nil {
		d.fail(res, rec, "", err)
		return nil
	}

	var attachments []domain.Attachment
	if !d.opts.DryRun {
		attachments, err = d.source.GetAttachments(rec.ID)
		if err != nil {
			d.fail(res, rec, category, &domain.TransferError{Op: "fetch attachments", Err: err})
			return nil
		}
	}

	payload, err := d.transformer.Build(rec, category, attachments)
	if err != nil {
		d.fail(res, rec, category, err)
		return nil
	}

	if d.opts.DryRun {
		res.Planned = append(res.Planned, Planned{SourceID: rec.ID, Category: category, Payload: payload})
		fmt.Fprintf(d.opts.Out, "%s (%s): would create %s\n", rec.ID, rec.Type, category.WorkItemType())
		return nil
	}

	destID, err := d.dest.CreateRecord(d.opts.DestProject, category, payload)
	if err != nil {
		d.fail(res, rec, category, &domain.TransferError{Op: "create record", Err: err})
		return nil
	}

	// The checkpoint is durable before anything else happens; a crash from
	// here on never re-creates this record.
	if err := d.checkpoints.Record(rec.ID, destID); err != nil {
		return err
	}

	res.Created++
	fmt.Fprintf(d.opts.Out, "%s (%s): created work item %d\n", rec.ID, rec.Type, destID)
	d.logEvent(func(ew *checkpoint.EventWriter) error {
		return ew.LogMigrated(rec.ID, category, destID)
	})

	if err := d.transferComments(rec, destID); err != nil {
		// The record itself is migrated; the checkpoint stays. A re-run
		// skips it, so these comments need manual follow-up.
		res.CommentsFailed++
		res.Failures = append(res.Failures, Failure{SourceID: rec.ID, Type: rec.Type, Err: err})
		fmt.Fprintf(d.opts.Out, "%s (%s): comment transfer failed: %v\n", rec.ID, rec.Type, err)
		d.logEvent(func(ew *checkpoint.EventWriter) error {
			return ew.LogFailed(rec.ID, category, err)
		})
	}
	return nil
}

// transferComments appends every source comment and a final provenance
// comment. Historical entries keep their author and timestamp in the body
// since the destination attributes appended comments to the migration user.
func (d *Driver) transferComments(rec *domain.SourceRecord, destID int) error {
	comments, err := d.source.GetComments(rec.ID)
	if err != nil {
		return &domain.TransferError{Op: "fetch comments", Err: err}
	}

	for _, comment := range comments {
		text := fmt.Sprintf("[%s on %s]\n%s",
			comment.Author, comment.Created.UTC().Format(time.RFC3339), comment.Body)
		if err := d.dest.AppendComment(destID, text); err != nil {
			return &domain.TransferError{Op: "append comment", Err: err}
		}
	}

	provenance := fmt.Sprintf("Migrated from %s (run %s)", rec.ID, d.runID)
	if err := d.dest.AppendComment(destID, provenance); err != nil {
		return &domain.TransferError{Op: "append provenance comment", Err: err}
	}
	return nil
}

func (d *Driver) fail(res *Result, rec *domain.SourceRecord, category domain.Category, err error) {
	res.Failed++
	res.Failures = append(res.Failures, Failure{SourceID: rec.ID, Type: rec.Type, Err: err})
	fmt.Fprintf(d.opts.Out, "%s (%s): failed: %v\n", rec.ID, rec.Type, err)
	d.logEvent(func(ew *checkpoint.EventWriter) error {
		return ew.LogFailed(rec.ID, category, err)
	})
}

// logEvent writes an audit row when an event writer is configured. Audit
// failures are advisory and never interrupt the run.
func (d *Driver) logEvent(fn func(*checkpoint.EventWriter) error) {
	if d.events == nil {
		return
	}
	if err := fn(d.events); err != nil {
		fmt.Fprintf(d.opts.Out, "warning: failed to write event: %v\n", err)
	}
}
