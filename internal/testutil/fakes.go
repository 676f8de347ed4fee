package testutil

import (
	"fmt"
	"sort"
	"time"

	"github.com/lherron/wrkmig/internal/domain"
)

// FakeSource is an in-memory source.Client backed by a fixed record set.
type FakeSource struct {
	Records     []domain.SourceRecord
	Comments    map[string][]domain.Comment
	Attachments map[string][]domain.Attachment

	QueryCalls int
}

// NewFakeSource creates a fake source holding the given records.
func NewFakeSource(records ...domain.SourceRecord) *FakeSource {
	return &FakeSource{
		Records:     records,
		Comments:    make(map[string][]domain.Comment),
		Attachments: make(map[string][]domain.Attachment),
	}
}

// QueryRecords pages records created strictly after createdAfter, oldest
// first, honoring the page limit the way a bounded source API would.
func (f *FakeSource) QueryRecords(project string, createdAfter time.Time, limit int) ([]domain.SourceRecord, error) {
	var page []domain.SourceRecord
	for _, rec := range f.sorted() {
		if !rec.Created.After(createdAfter) {
			continue
		}
		page = append(page, rec)
		if len(page) >= limit {
			break
		}
	}
	f.QueryCalls++
	return page, nil
}

// GetComments returns the canned comments for a record.
func (f *FakeSource) GetComments(recordID string) ([]domain.Comment, error) {
	return f.Comments[recordID], nil
}

// GetAttachments returns the canned attachments for a record.
func (f *FakeSource) GetAttachments(recordID string) ([]domain.Attachment, error) {
	return f.Attachments[recordID], nil
}

func (f *FakeSource) sorted() []domain.SourceRecord {
	records := make([]domain.SourceRecord, len(f.Records))
	copy(records, f.Records)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Created.Before(records[j].Created)
	})
	return records
}

// CreatedRecord captures one CreateRecord call on the fake destination.
type CreatedRecord struct {
	ID       int
	Project  string
	Category domain.Category
	Payload  *domain.FieldPayload
}

// FakeDest is an in-memory dest.Client capturing every write.
type FakeDest struct {
	Created  []CreatedRecord
	Comments map[int][]string
	Uploads  []string

	nextID int

	// CreateErr fails every CreateRecord call when set.
	CreateErr error
	// UploadErr fails UploadAttachment for the named file when set.
	UploadErr     error
	UploadErrFile string
	// CommentErr fails every AppendComment call when set.
	CommentErr error
}

// NewFakeDest creates a fake destination assigning IDs from 101 upward.
func NewFakeDest() *FakeDest {
	return &FakeDest{
		Comments: make(map[int][]string),
		nextID:   101,
	}
}

// CreateRecord captures the payload and assigns the next destination ID.
func (f *FakeDest) CreateRecord(project string, category domain.Category, payload *domain.FieldPayload) (int, error) {
	if f.CreateErr != nil {
		return 0, f.CreateErr
	}
	id := f.nextID
	f.nextID++
	f.Created = append(f.Created, CreatedRecord{
		ID:       id,
		Project:  project,
		Category: category,
		Payload:  payload,
	})
	return id, nil
}

// UploadAttachment captures the filename and returns a synthetic reference.
func (f *FakeDest) UploadAttachment(project, filename string, content []byte) (string, error) {
	if f.UploadErr != nil && (f.UploadErrFile == "" || f.UploadErrFile == filename) {
		return "", f.UploadErr
	}
	f.Uploads = append(f.Uploads, filename)
	return fmt.Sprintf("http://dest/attachments/%s", filename), nil
}

// AppendComment captures the comment text per destination ID.
func (f *FakeDest) AppendComment(destID int, text string) error {
	if f.CommentErr != nil {
		return f.CommentErr
	}
	f.Comments[destID] = append(f.Comments[destID], text)
	return nil
}

// RecordURL returns a synthetic work item URL.
func (f *FakeDest) RecordURL(destID int) string {
	return fmt.Sprintf("http://dest/workItems/%d", destID)
}
