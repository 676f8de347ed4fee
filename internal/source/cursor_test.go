package source

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &Cursor{
		Project:     "PROJ",
		LastCreated: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		LastID:      "PROJ-42",
	}

	encoded, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeCursor(encoded)
	if err != nil {
		t.Fatalf("DecodeCursor failed: %v", err)
	}

	if decoded.Project != c.Project || decoded.LastID != c.LastID {
		t.Errorf("Round trip mismatch: %+v", decoded)
	}
	if !decoded.LastCreated.Equal(c.LastCreated) {
		t.Errorf("Expected %v, got %v", c.LastCreated, decoded.LastCreated)
	}
}

func TestDecodeCursorRejectsInvalid(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!!",
		"eyJmb28iOiJiYXIifQ==", // valid base64 JSON, missing fields
	}
	for _, encoded := range cases {
		if _, err := DecodeCursor(encoded); err == nil {
			t.Errorf("Expected error for %q", encoded)
		}
	}
}
