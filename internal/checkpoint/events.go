package checkpoint

import (
	"fmt"

	"github.com/lherron/wrkmig/internal/db"
	"github.com/lherron/wrkmig/internal/domain"
)

// Event types written to the migration event log.
const (
	EventMigrated = "record.migrated"
	EventSkipped  = "record.skipped"
	EventFailed   = "record.failed"
)

// Event is one row of the migration event log.
type Event struct {
	RunID     string
	SourceID  string
	Category  domain.Category
	EventType string
	Message   string
	CreatedAt string
}

// EventWriter appends rows to the migration event log. Event writes are
// best-effort relative to the run: a failed audit row must not abort the
// migration, so callers treat errors as advisory.
type EventWriter struct {
	db    *db.DB
	runID string
}

// NewEventWriter creates a writer stamping every event with the given run ID.
func NewEventWriter(database *db.DB, runID string) *EventWriter {
	return &EventWriter{db: database, runID: runID}
}

// LogMigrated records a successful creation.
func (w *EventWriter) LogMigrated(sourceID string, category domain.Category, destID int) error {
	return w.write(sourceID, category, EventMigrated, fmt.Sprintf("created work item %d", destID))
}

// LogSkipped records a checkpoint-based skip.
func (w *EventWriter) LogSkipped(sourceID string, destID int) error {
	return w.write(sourceID, "", EventSkipped, fmt.Sprintf("already migrated as %d", destID))
}

// LogFailed records a record-scoped failure.
func (w *EventWriter) LogFailed(sourceID string, category domain.Category, cause error) error {
	return w.write(sourceID, category, EventFailed, cause.Error())
}

func (w *EventWriter) write(sourceID string, category domain.Category, eventType, message string) error {
	_, err := w.db.Exec(
		`INSERT INTO event_log (run_id, source_id, category, event_type, message) VALUES (?, ?, ?, ?, ?)`,
		w.runID, sourceID, string(category), eventType, message,
	)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// EventFilter narrows ListEvents results.
type EventFilter struct {
	RunID      string
	FailedOnly bool
}

// ListEvents returns event log rows, oldest first.
func ListEvents(database *db.DB, filter EventFilter) ([]Event, error) {
	query := `SELECT run_id, source_id, category, event_type, message, created_at FROM event_log`
	var conds []string
	var args []interface{}

	if filter.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.FailedOnly {
		conds = append(conds, "event_type = ?")
		args = append(args, EventFailed)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY id"

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var category string
		if err := rows.Scan(&e.RunID, &e.SourceID, &category, &e.EventType, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Category = domain.Category(category)
		events = append(events, e)
	}
	return events, rows.Err()
}
