package source

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lherron/wrkmig/internal/domain"
)

const jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

// Custom field IDs vary per Jira instance; these are the defaults for a
// cloud instance with the software project template.
type JiraFieldIDs struct {
	EpicLink    string
	EpicName    string
	Sprint      string
	StoryPoints string
	Team        string
}

// DefaultJiraFieldIDs returns the common cloud-instance custom field IDs.
func DefaultJiraFieldIDs() JiraFieldIDs {
	return JiraFieldIDs{
		EpicLink:    "customfield_10014",
		EpicName:    "customfield_10011",
		Sprint:      "customfield_10020",
		StoryPoints: "customfield_10016",
		Team:        "customfield_10001",
	}
}

// JiraClient implements Client against the Jira REST API v2.
type JiraClient struct {
	baseURL    string
	username   string
	token      string
	fieldIDs   JiraFieldIDs
	httpClient *http.Client
}

// NewJiraClient creates a Jira client with basic auth.
func NewJiraClient(baseURL, username, token string) *JiraClient {
	return &JiraClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		token:    token,
		fieldIDs: DefaultJiraFieldIDs(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// SetFieldIDs overrides the instance-specific custom field IDs.
func (c *JiraClient) SetFieldIDs(ids JiraFieldIDs) {
	c.fieldIDs = ids
}

type jiraSearchResponse struct {
	Issues []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type jiraUser struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

type jiraName struct {
	Name string `json:"name"`
}

type jiraParent struct {
	Key string `json:"key"`
}

type jiraSprint struct {
	Name string `json:"name"`
}

type jiraCommentsResponse struct {
	Comments []struct {
		Author  jiraUser `json:"author"`
		Body    string   `json:"body"`
		Created string   `json:"created"`
	} `json:"comments"`
}

type jiraAttachmentMeta struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // download URL
}

// QueryRecords pages the project's records oldest first using a JQL creation
// time lower bound. JQL datetime literals are minute-granular, so the server
// hands back records at or before the full-precision cursor whenever the
// cursor has a non-zero second; those are filtered out here to keep the
// strict created > createdAfter contract, which is what lets the caller
// terminate on an empty page. A page holding nothing but such boundary
// records grows the fetch size until a new record shows up or the server
// runs out.
func (c *JiraClient) QueryRecords(project string, createdAfter time.Time, limit int) ([]domain.SourceRecord, error) {
	fetch := limit
	for {
		issues, err := c.search(project, createdAfter, fetch)
		if err != nil {
			return nil, err
		}

		records := make([]domain.SourceRecord, 0, len(issues))
		for _, issue := range issues {
			rec, err := c.toRecord(issue)
			if err != nil {
				return nil, fmt.Errorf("failed to parse issue %s: %w", issue.Key, err)
			}
			if !createdAfter.IsZero() && !rec.Created.After(createdAfter) {
				continue
			}
			records = append(records, rec)
		}

		if len(records) > 0 || len(issues) < fetch {
			if len(records) > limit {
				records = records[:limit]
			}
			return records, nil
		}
		fetch *= 2
	}
}

func (c *JiraClient) search(project string, createdAfter time.Time, limit int) ([]jiraIssue, error) {
	jql := fmt.Sprintf("project = %s", project)
	if !createdAfter.IsZero() {
		// JQL datetime literals have minute granularity.
		jql += fmt.Sprintf(" AND created > \"%s\"", createdAfter.Format("2006/01/02 15:04"))
	}
	jql += " ORDER BY created ASC"

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("maxResults", fmt.Sprintf("%d", limit))
	query.Set("fields", "*all")

	var resp jiraSearchResponse
	if err := c.get("/rest/api/2/search?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Issues, nil
}

func (c *JiraClient) toRecord(issue jiraIssue) (domain.SourceRecord, error) {
	rec := domain.SourceRecord{ID: issue.Key}
	f := issue.Fields

	rec.Summary = stringField(f, "summary")
	rec.Description = stringField(f, "description")
	rec.Resolution = nameField(f, "resolution")
	rec.Status = nameField(f, "status")
	rec.Priority = nameField(f, "priority")
	rec.Type = nameField(f, "issuetype")
	rec.Creator = userField(f, "reporter")
	rec.Assignee = userField(f, "assignee")

	created, err := timeField(f, "created")
	if err != nil {
		return rec, err
	}
	if created == nil {
		return rec, fmt.Errorf("issue has no created timestamp")
	}
	rec.Created = *created

	resolved, err := timeField(f, "resolutiondate")
	if err != nil {
		return rec, err
	}
	rec.Resolved = resolved

	if raw, ok := f["parent"]; ok {
		var parent jiraParent
		if err := json.Unmarshal(raw, &parent); err == nil {
			rec.ParentID = parent.Key
		}
	}
	if raw, ok := f[c.fieldIDs.EpicLink]; ok {
		var link string
		if err := json.Unmarshal(raw, &link); err == nil {
			rec.EpicLink = link
		}
	}
	if raw, ok := f[c.fieldIDs.EpicName]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			rec.EpicName = name
		}
	}
	if raw, ok := f[c.fieldIDs.Sprint]; ok {
		var sprints []jiraSprint
		if err := json.Unmarshal(raw, &sprints); err == nil {
			for _, s := range sprints {
				rec.Sprints = append(rec.Sprints, s.Name)
			}
		}
	}
	if raw, ok := f[c.fieldIDs.StoryPoints]; ok {
		var points float64
		if err := json.Unmarshal(raw, &points); err == nil {
			rec.StoryPoints = &points
		}
	}
	if raw, ok := f[c.fieldIDs.Team]; ok {
		var team jiraName
		if err := json.Unmarshal(raw, &team); err == nil {
			rec.Team = team.Name
		}
	}
	if raw, ok := f["labels"]; ok {
		_ = json.Unmarshal(raw, &rec.Labels)
	}

	return rec, nil
}

// GetComments returns the record's comments in original order.
func (c *JiraClient) GetComments(recordID string) ([]domain.Comment, error) {
	var resp jiraCommentsResponse
	if err := c.get(fmt.Sprintf("/rest/api/2/issue/%s/comment", recordID), &resp); err != nil {
		return nil, err
	}

	comments := make([]domain.Comment, 0, len(resp.Comments))
	for _, jc := range resp.Comments {
		comment := domain.Comment{
			Author: identity(jc.Author),
			Body:   jc.Body,
		}
		if jc.Created != "" {
			created, err := time.Parse(jiraTimeFormat, jc.Created)
			if err != nil {
				return nil, fmt.Errorf("failed to parse comment timestamp on %s: %w", recordID, err)
			}
			comment.Created = created
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// GetAttachments downloads the record's attachments in original order.
func (c *JiraClient) GetAttachments(recordID string) ([]domain.Attachment, error) {
	var issue struct {
		Fields struct {
			Attachment []jiraAttachmentMeta `json:"attachment"`
		} `json:"fields"`
	}
	if err := c.get(fmt.Sprintf("/rest/api/2/issue/%s?fields=attachment", recordID), &issue); err != nil {
		return nil, err
	}

	attachments := make([]domain.Attachment, 0, len(issue.Fields.Attachment))
	for _, meta := range issue.Fields.Attachment {
		content, err := c.download(meta.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to download attachment %s: %w", meta.Filename, err)
		}
		attachments = append(attachments, domain.Attachment{
			Filename: meta.Filename,
			Content:  content,
		})
	}
	return attachments, nil
}

func (c *JiraClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("source API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *JiraClient) download(rawURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source API returned %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func nameField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var n jiraName
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.Name
}

func userField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var u jiraUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return ""
	}
	return identity(u)
}

func timeField(fields map[string]json.RawMessage, name string) (*time.Time, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("field %s is not a timestamp string", name)
	}
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(jiraTimeFormat, s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s timestamp: %w", name, err)
	}
	return &t, nil
}

func identity(u jiraUser) string {
	if u.EmailAddress != "" {
		return u.EmailAddress
	}
	return u.DisplayName
}
