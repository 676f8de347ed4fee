package dest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lherron/wrkmig/internal/domain"
)

const apiVersion = "7.0"

// AzureClient implements Client against the Azure DevOps work item REST API.
type AzureClient struct {
	orgURL     string // https://dev.azure.com/{org}
	pat        string
	httpClient *http.Client
}

// NewAzureClient creates a client authenticating with a personal access token.
func NewAzureClient(orgURL, pat string) *AzureClient {
	return &AzureClient{
		orgURL: strings.TrimSuffix(orgURL, "/"),
		pat:    pat,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// patchOp is one JSON-patch operation on the create request.
type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

type workItemResponse struct {
	ID int `json:"id"`
}

type attachmentResponse struct {
	URL string `json:"url"`
}

// CreateRecord creates a work item with bypassRules so historical states and
// dates are accepted as-is.
func (c *AzureClient) CreateRecord(project string, category domain.Category, payload *domain.FieldPayload) (int, error) {
	ops := make([]patchOp, 0, len(payload.Fields)+len(payload.Relations))
	for _, f := range payload.Fields {
		ops = append(ops, patchOp{
			Op:    "add",
			Path:  "/fields/" + f.Path,
			Value: f.Value,
		})
	}
	for _, rel := range payload.Relations {
		ops = append(ops, patchOp{
			Op:   "add",
			Path: "/relations/-",
			Value: map[string]string{
				"rel": rel.Rel,
				"url": rel.URL,
			},
		})
	}

	body, err := json.Marshal(ops)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal create payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s?bypassRules=true&api-version=%s",
		c.orgURL, url.PathEscape(project), url.PathEscape(category.WorkItemType()), apiVersion)

	var resp workItemResponse
	if err := c.do(http.MethodPost, endpoint, "application/json-patch+json", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// UploadAttachment streams the content to the attachment store and returns
// the reference URL.
func (c *AzureClient) UploadAttachment(project, filename string, content []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/attachments?fileName=%s&api-version=%s",
		c.orgURL, url.PathEscape(project), url.QueryEscape(filename), apiVersion)

	var resp attachmentResponse
	if err := c.do(http.MethodPost, endpoint, "application/octet-stream", content, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// AppendComment adds a comment to an existing work item.
func (c *AzureClient) AppendComment(destID int, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	endpoint := fmt.Sprintf("%s/_apis/wit/workItems/%d/comments?api-version=%s-preview.3",
		c.orgURL, destID, apiVersion)

	return c.do(http.MethodPost, endpoint, "application/json", body, nil)
}

// RecordURL returns the canonical work item URL used in link relations.
func (c *AzureClient) RecordURL(destID int) string {
	return fmt.Sprintf("%s/_apis/wit/workItems/%d", c.orgURL, destID)
}

func (c *AzureClient) do(method, endpoint, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequest(method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("destination API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
