package source

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor marks how far a run paged through the source. Encoded as an opaque
// string so it can be passed back on a later invocation.
type Cursor struct {
	Project     string    `json:"project"`
	LastCreated time.Time `json:"last_created"`
	LastID      string    `json:"last_id"`
}

// Encode serializes the cursor to an opaque base64 string.
func (c *Cursor) Encode() (string, error) {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(jsonData), nil
}

// DecodeCursor deserializes a cursor from an opaque base64 string.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}

	if c.Project == "" {
		return nil, fmt.Errorf("cursor missing project")
	}
	if c.LastCreated.IsZero() {
		return nil, fmt.Errorf("cursor missing last created timestamp")
	}

	return &c, nil
}
