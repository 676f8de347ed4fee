package migrate

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lherron/wrkmig/internal/checkpoint"
	"github.com/lherron/wrkmig/internal/db"
	"github.com/lherron/wrkmig/internal/domain"
	"github.com/lherron/wrkmig/internal/mapping"
	"github.com/lherron/wrkmig/internal/source"
	"github.com/lherron/wrkmig/internal/testutil"
	"github.com/lherron/wrkmig/internal/transform"
)

type harness struct {
	db     *db.DB
	store  *checkpoint.Store
	source *testutil.FakeSource
	dest   *testutil.FakeDest
	out    *bytes.Buffer
}

func newHarness(t *testing.T, records ...domain.SourceRecord) *harness {
	t.Helper()
	database, _ := testutil.TempDB(t)
	store, err := checkpoint.Open(database)
	testutil.AssertNoError(t, err)
	return &harness{
		db:     database,
		store:  store,
		source: testutil.NewFakeSource(records...),
		dest:   testutil.NewFakeDest(),
		out:    &bytes.Buffer{},
	}
}

func (h *harness) driver(opts Options) *Driver {
	opts.SourceProject = "PROJ"
	opts.DestProject = "Fabrikam"
	opts.Out = h.out
	transformer := transform.New(mapping.Default(), h.store, h.dest, "Fabrikam")
	var events *checkpoint.EventWriter
	if !opts.DryRun {
		if opts.RunID == "" {
			opts.RunID = "test-run"
		}
		events = checkpoint.NewEventWriter(h.db, opts.RunID)
	}
	return New(h.source, h.dest, h.store, transformer, events, opts)
}

func epicRecord() domain.SourceRecord {
	return domain.SourceRecord{
		ID:      "PROJ-1",
		Type:    "Epic",
		Status:  "Backlog",
		Summary: "Login overhaul",
		Creator: "jane@example.com",
		Created: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func storyRecord() domain.SourceRecord {
	return domain.SourceRecord{
		ID:       "PROJ-2",
		Type:     "Story",
		Status:   "In Progress",
		Summary:  "Add SSO",
		Creator:  "bob@example.com",
		Created:  time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
		EpicLink: "PROJ-1",
	}
}

func TestRunMigratesHierarchy(t *testing.T) {
	h := newHarness(t, epicRecord(), storyRecord())

	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 2, res.Created)
	testutil.AssertEqual(t, 0, res.Skipped)
	testutil.AssertEqual(t, 0, res.Failed)

	if len(h.dest.Created) != 2 {
		t.Fatalf("Expected 2 creations, got %d", len(h.dest.Created))
	}

	epic := h.dest.Created[0]
	testutil.AssertEqual(t, domain.CategoryFeature, epic.Category)
	if state, _ := epic.Payload.Get(domain.FieldState); state != "New" {
		t.Errorf("Expected epic state New, got %v", state)
	}

	story := h.dest.Created[1]
	testutil.AssertEqual(t, domain.CategoryBacklogItem, story.Category)
	if state, _ := story.Payload.Get(domain.FieldState); state != "Committed" {
		t.Errorf("Expected story state Committed, got %v", state)
	}
	if len(story.Payload.Relations) != 1 || story.Payload.Relations[0].URL != "http://dest/workItems/101" {
		t.Errorf("Story parent link should resolve to the epic's ID, got %v", story.Payload.Relations)
	}

	// Checkpoints recorded for both.
	if destID, ok := h.store.Lookup("PROJ-1"); !ok || destID != 101 {
		t.Errorf("Expected checkpoint PROJ-1 -> 101, got %d (present=%v)", destID, ok)
	}
	if destID, ok := h.store.Lookup("PROJ-2"); !ok || destID != 102 {
		t.Errorf("Expected checkpoint PROJ-2 -> 102, got %d (present=%v)", destID, ok)
	}
}

func TestRunIdempotence(t *testing.T) {
	h := newHarness(t, epicRecord(), storyRecord())

	_, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)
	firstCreates := len(h.dest.Created)

	h.out.Reset()
	res, err := h.driver(Options{RunID: "second-run"}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 0, res.Created)
	testutil.AssertEqual(t, 2, res.Skipped)
	if len(h.dest.Created) != firstCreates {
		t.Errorf("Second run performed creation calls: %d -> %d", firstCreates, len(h.dest.Created))
	}
	if !strings.Contains(h.out.String(), "PROJ-1: skipped") || !strings.Contains(h.out.String(), "PROJ-2: skipped") {
		t.Errorf("Log should show both records skipped:\n%s", h.out.String())
	}
}

func TestRunOrderingViolation(t *testing.T) {
	// Child created before its parent in the source: the parent lookup
	// must fail loudly rather than create an unlinked record.
	child := storyRecord()
	child.Created = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	h := newHarness(t, child, epicRecord())

	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 1, res.Created) // the epic
	testutil.AssertEqual(t, 1, res.Failed)

	var notMigrated *domain.ParentNotMigratedError
	if !errors.As(res.Failures[0].Err, &notMigrated) {
		t.Fatalf("Expected ParentNotMigratedError, got %v", res.Failures[0].Err)
	}
	if _, ok := h.store.Lookup("PROJ-2"); ok {
		t.Error("Failed record must not be checkpointed")
	}
}

func TestRunFailureIsolation(t *testing.T) {
	bad := domain.SourceRecord{
		ID:      "PROJ-2",
		Type:    "Task",
		Status:  "Blocked-By-Vendor",
		Summary: "Stuck",
		Created: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	}
	good := domain.SourceRecord{
		ID:      "PROJ-3",
		Type:    "Task",
		Status:  "To Do",
		Summary: "Next up",
		Created: time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC),
	}

	h := newHarness(t, epicRecord(), bad, good)

	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 2, res.Created)
	testutil.AssertEqual(t, 1, res.Failed)
	testutil.AssertEqual(t, "PROJ-2", res.Failures[0].SourceID)

	// The record after the failure was still processed.
	if _, ok := h.store.Lookup("PROJ-3"); !ok {
		t.Error("Record after a failure should still be migrated")
	}
	if !strings.Contains(h.out.String(), "PROJ-2 (Task): failed:") {
		t.Errorf("Log should carry identifier, type, and message:\n%s", h.out.String())
	}
}

func TestRunUnsupportedType(t *testing.T) {
	odd := domain.SourceRecord{
		ID:      "PROJ-9",
		Type:    "Incident",
		Status:  "Open",
		Created: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
	}

	h := newHarness(t, odd)
	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 1, res.Failed)
	var unsupported *domain.UnsupportedTypeError
	if !errors.As(res.Failures[0].Err, &unsupported) {
		t.Fatalf("Expected UnsupportedTypeError, got %v", res.Failures[0].Err)
	}
}

func TestRunCreateFailureContinues(t *testing.T) {
	h := newHarness(t, epicRecord(), storyRecord())
	h.dest.CreateErr = errors.New("503 service unavailable")

	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 0, res.Created)
	testutil.AssertEqual(t, 2, res.Failed)
	for _, failure := range res.Failures {
		var transfer *domain.TransferError
		if !errors.As(failure.Err, &transfer) {
			t.Errorf("Expected TransferError for %s, got %v", failure.SourceID, failure.Err)
		}
	}
	testutil.AssertEqual(t, 0, h.store.Count())
}

func TestRunTransfersComments(t *testing.T) {
	h := newHarness(t, epicRecord())
	h.source.Comments["PROJ-1"] = []domain.Comment{
		{Author: "Bob", Body: "first", Created: time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)},
		{Author: "Amy", Body: "second", Created: time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC)},
	}

	res, err := h.driver(Options{RunID: "run-42"}).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, res.Created)

	comments := h.dest.Comments[101]
	if len(comments) != 3 {
		t.Fatalf("Expected 2 comments plus provenance, got %d", len(comments))
	}
	if !strings.Contains(comments[0], "Bob") || !strings.Contains(comments[0], "first") {
		t.Errorf("Comment should carry original author and body: %q", comments[0])
	}
	if !strings.Contains(comments[0], "2024-01-05T08:00:00Z") {
		t.Errorf("Comment should carry original timestamp: %q", comments[0])
	}
	last := comments[len(comments)-1]
	if !strings.Contains(last, "PROJ-1") || !strings.Contains(last, "run-42") {
		t.Errorf("Provenance comment should name source ID and run: %q", last)
	}
}

func TestRunCommentFailureKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, epicRecord())
	h.source.Comments["PROJ-1"] = []domain.Comment{{Author: "Bob", Body: "hi"}}
	h.dest.CommentErr = errors.New("comment API down")

	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)

	// The record is created and checkpointed; the comment failure is
	// surfaced separately so the counts still partition the records.
	testutil.AssertEqual(t, 1, res.Created)
	testutil.AssertEqual(t, 0, res.Failed)
	testutil.AssertEqual(t, 1, res.CommentsFailed)
	if len(res.Failures) != 1 {
		t.Fatalf("Expected the comment failure in the failure list, got %d", len(res.Failures))
	}
	if res.Created+res.Skipped+res.Failed != 1 {
		t.Errorf("Counts must partition the processed records: %d created, %d skipped, %d failed",
			res.Created, res.Skipped, res.Failed)
	}
	if _, ok := h.store.Lookup("PROJ-1"); !ok {
		t.Error("Checkpoint must survive a comment transfer failure")
	}
}

func TestRunAttachmentFlow(t *testing.T) {
	h := newHarness(t, epicRecord())
	h.source.Attachments["PROJ-1"] = []domain.Attachment{
		{Filename: "design.png", Content: []byte{1, 2}},
	}

	res, err := h.driver(Options{}).Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, res.Created)

	if len(h.dest.Uploads) != 1 || h.dest.Uploads[0] != "design.png" {
		t.Errorf("Expected attachment upload, got %v", h.dest.Uploads)
	}
	payload := h.dest.Created[0].Payload
	if len(payload.Relations) != 1 || payload.Relations[0].Rel != domain.RelationAttachedFile {
		t.Errorf("Expected attached file relation, got %v", payload.Relations)
	}
}

func TestRunPagination(t *testing.T) {
	records := []domain.SourceRecord{epicRecord(), storyRecord()}
	third := domain.SourceRecord{
		ID:      "PROJ-3",
		Type:    "Task",
		Status:  "To Do",
		Summary: "Cleanup",
		Created: time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC),
	}
	records = append(records, third)

	h := newHarness(t, records...)

	res, err := h.driver(Options{PageSize: 1}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 3, res.Created)
	// One query per record plus the final empty page.
	testutil.AssertEqual(t, 4, h.source.QueryCalls)
	if res.Cursor == nil || res.Cursor.LastID != "PROJ-3" {
		t.Errorf("Cursor should mark the last processed record, got %+v", res.Cursor)
	}
}

func TestRunStartAfterCursor(t *testing.T) {
	h := newHarness(t, epicRecord(), storyRecord())

	res, err := h.driver(Options{StartAfter: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}).Run()
	testutil.AssertNoError(t, err)

	// Only the story is after the cursor; its parent lookup fails because
	// the epic was never migrated, so the ordering violation surfaces.
	testutil.AssertEqual(t, 0, res.Created)
	testutil.AssertEqual(t, 1, res.Failed)
}

func TestRunDryRun(t *testing.T) {
	h := newHarness(t, epicRecord(), storyRecord())

	// The story's parent must resolve even in a dry run, so checkpoint the
	// epic as if a prior real run had migrated it.
	testutil.AssertNoError(t, h.store.Record("PROJ-1", 101))

	res, err := h.driver(Options{DryRun: true}).Run()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, 0, res.Created)
	testutil.AssertEqual(t, 1, res.Skipped) // the checkpointed epic
	if len(res.Planned) != 1 || res.Planned[0].SourceID != "PROJ-2" {
		t.Fatalf("Expected one planned record, got %+v", res.Planned)
	}
	if len(h.dest.Created) != 0 || len(h.dest.Uploads) != 0 {
		t.Error("Dry run must not write to the destination")
	}
	// No checkpoint for planned-only records.
	if _, ok := h.store.Lookup("PROJ-2"); ok {
		t.Error("Dry run must not record checkpoints")
	}
}

func TestRunWritesEvents(t *testing.T) {
	bad := domain.SourceRecord{
		ID:      "PROJ-5",
		Type:    "Sprocket",
		Status:  "Open",
		Created: time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC),
	}
	h := newHarness(t, epicRecord(), bad)

	_, err := h.driver(Options{RunID: "audited"}).Run()
	testutil.AssertNoError(t, err)

	events, err := checkpoint.ListEvents(h.db, checkpoint.EventFilter{RunID: "audited"})
	testutil.AssertNoError(t, err)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	testutil.AssertEqual(t, checkpoint.EventMigrated, events[0].EventType)
	testutil.AssertEqual(t, checkpoint.EventFailed, events[1].EventType)
	testutil.AssertEqual(t, "PROJ-5", events[1].SourceID)
}

func TestRunTerminatesOnMinuteGranularCursor(t *testing.T) {
	// A faithful JQL server truncates the creation bound to the minute, so
	// it keeps returning a record created at 10:00:30 for the bound
	// "2024/01/02 10:00". The run must still settle on an empty page
	// instead of re-querying forever.
	created := time.Date(2024, 1, 2, 10, 0, 30, 0, time.UTC)

	var queries int
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		queries++
		include := true
		jql := r.URL.Query().Get("jql")
		if i := strings.Index(jql, `created > "`); i >= 0 {
			literal := jql[i+len(`created > "`):]
			bound, err := time.Parse("2006/01/02 15:04", literal[:16])
			if err != nil {
				t.Errorf("Unparseable JQL bound in %q: %v", jql, err)
				include = false
			} else {
				include = created.After(bound)
			}
		}
		if include {
			fmt.Fprint(w, `{"issues": [{"key": "PROJ-1", "fields": {"summary": "Login epic", "status": {"name": "Backlog"}, "issuetype": {"name": "Epic"}, "created": "2024-01-02T10:00:30.000+0000"}}]}`)
		} else {
			fmt.Fprint(w, `{"issues": []}`)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"comments": [], "fields": {"attachment": []}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	h := newHarness(t)
	client := source.NewJiraClient(server.URL, "user", "token")
	transformer := transform.New(mapping.Default(), h.store, h.dest, "Fabrikam")
	events := checkpoint.NewEventWriter(h.db, "minute-run")
	driver := New(client, h.dest, h.store, transformer, events, Options{
		SourceProject: "PROJ",
		DestProject:   "Fabrikam",
		RunID:         "minute-run",
		Out:           h.out,
	})

	res, err := driver.Run()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 1, res.Created)
	testutil.AssertEqual(t, 0, res.Skipped)
	// The processing page plus the empty follow-up.
	testutil.AssertEqual(t, 2, queries)
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		typeName string
		want     domain.Category
	}{
		{"Epic", domain.CategoryFeature},
		{"Bug", domain.CategoryBug},
		{"Story", domain.CategoryBacklogItem},
		{"Improvement", domain.CategoryBacklogItem},
		{"Task", domain.CategoryTask},
		{"Sub-task", domain.CategoryTask},
		{"Chore", domain.CategoryTask},
	}
	for _, tt := range tests {
		got, err := CategoryFor(tt.typeName)
		if err != nil {
			t.Errorf("CategoryFor(%q) failed: %v", tt.typeName, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CategoryFor(%q): expected %s, got %s", tt.typeName, tt.want, got)
		}
	}

	if _, err := CategoryFor("Incident"); err == nil {
		t.Error("Expected error for unrecognized type")
	}
}
