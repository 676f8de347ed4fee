package domain

import (
	"time"
)

// Category represents the destination-side classification of a record.
// It drives which state table and field-building rules apply.
type Category string

const (
	CategoryFeature     Category = "feature"
	CategoryBug         Category = "bug"
	CategoryBacklogItem Category = "backlog_item"
	CategoryTask        Category = "task"
)

// Categories lists all categories in a stable order.
var Categories = []Category{CategoryFeature, CategoryBug, CategoryBacklogItem, CategoryTask}

// WorkItemType returns the destination work item type name for the category.
func (c Category) WorkItemType() string {
	switch c {
	case CategoryFeature:
		return "Feature"
	case CategoryBug:
		return "Bug"
	case CategoryBacklogItem:
		return "Product Backlog Item"
	case CategoryTask:
		return "Task"
	default:
		return ""
	}
}

// Comment is one comment on a source record, in original order.
type Comment struct {
	Author  string
	Body    string
	Created time.Time
}

// Attachment is one file attached to a source record.
type Attachment struct {
	Filename string
	Content  []byte
}

// SourceRecord is one issue-tracker item being migrated. It is read-only:
// the migration never writes back to the source system.
type SourceRecord struct {
	ID          string // globally unique, stable across re-runs
	Type        string // source type name (Epic, Bug, Story, Task, Sub-task, ...)
	Status      string
	Priority    string
	Summary     string
	Description string
	Creator     string
	Assignee    string
	Created     time.Time
	Resolved    *time.Time
	Resolution  string

	// ParentID is the structural parent key; EpicLink is the epic-link
	// custom attribute. EpicLink wins when both are set.
	ParentID string
	EpicLink string

	// Custom attributes.
	Sprints     []string
	StoryPoints *float64
	Team        string
	EpicName    string

	Labels      []string
	Comments    []Comment
	Attachments []Attachment
}

// ParentKey returns the source identifier the destination parent link should
// resolve through, or "" when the record is a root.
func (r *SourceRecord) ParentKey() string {
	if r.EpicLink != "" {
		return r.EpicLink
	}
	return r.ParentID
}

// Field is one destination field write. Payloads are sparse: a field is
// present only when its value is non-empty.
type Field struct {
	Path  string
	Value interface{}
}

// Relation links the new work item to another resource (parent link,
// uploaded attachment file).
type Relation struct {
	Rel string
	URL string
}

// FieldPayload is the creation payload for one destination record. Field
// order is preserved so payloads render deterministically.
type FieldPayload struct {
	Fields    []Field
	Relations []Relation
}

// Set appends a field write. Empty string values are dropped, preserving the
// sparse payload discipline.
func (p *FieldPayload) Set(path string, value interface{}) {
	if s, ok := value.(string); ok && s == "" {
		return
	}
	p.Fields = append(p.Fields, Field{Path: path, Value: value})
}

// Get returns the value of the named field and whether it is present.
func (p *FieldPayload) Get(path string) (interface{}, bool) {
	for _, f := range p.Fields {
		if f.Path == path {
			return f.Value, true
		}
	}
	return nil, false
}

// AddRelation appends a relation entry. Relation order follows call order,
// which for attachments is source order.
func (p *FieldPayload) AddRelation(rel, url string) {
	p.Relations = append(p.Relations, Relation{Rel: rel, URL: url})
}

// Well-known destination field paths.
const (
	FieldTitle          = "System.Title"
	FieldDescription    = "System.Description"
	FieldState          = "System.State"
	FieldCreatedDate    = "System.CreatedDate"
	FieldChangedDate    = "System.ChangedDate"
	FieldCreatedBy      = "System.CreatedBy"
	FieldAssignedTo     = "System.AssignedTo"
	FieldAreaPath       = "System.AreaPath"
	FieldIterationPath  = "System.IterationPath"
	FieldTags           = "System.Tags"
	FieldPriority       = "Microsoft.VSTS.Common.Priority"
	FieldClosedDate     = "Microsoft.VSTS.Common.ClosedDate"
	FieldResolvedDate   = "Microsoft.VSTS.Common.ResolvedDate"
	FieldResolvedReason = "Microsoft.VSTS.Common.ResolvedReason"
	FieldFinishDate     = "Microsoft.VSTS.Scheduling.FinishDate"
	FieldStoryPoints    = "Microsoft.VSTS.Scheduling.StoryPoints"
	FieldEffort         = "Microsoft.VSTS.Scheduling.Effort"
	FieldRemainingWork  = "Microsoft.VSTS.Scheduling.RemainingWork"
)

// Relation kinds used on creation payloads.
const (
	RelationParent       = "System.LinkTypes.Hierarchy-Reverse"
	RelationAttachedFile = "AttachedFile"
)
