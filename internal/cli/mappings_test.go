package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/wrkmig/internal/cli/appctx"
	"github.com/lherron/wrkmig/internal/config"
	"github.com/spf13/cobra"
)

func TestRunMappings(t *testing.T) {
	app := &appctx.App{Config: &config.Config{}}

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	if err := runMappings(app, cmd, nil); err != nil {
		t.Fatalf("runMappings failed: %v", err)
	}

	output := buf.String()
	for _, line := range []string{
		"states (feature):",
		"states (backlog_item):",
		"In Progress",
		"priorities:",
		"Blocker",
	} {
		if !strings.Contains(output, line) {
			t.Errorf("Expected output to contain %q, got:\n%s", line, output)
		}
	}
	if strings.Contains(output, "users:") {
		t.Errorf("Expected no user table without an overlay, got:\n%s", output)
	}
}

func TestRunMappingsWithOverlay(t *testing.T) {
	overlay := filepath.Join(t.TempDir(), "mapping.yaml")
	content := `users:
  jdoe@example.com: jane.doe@corp.example.com
`
	if err := os.WriteFile(overlay, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write overlay: %v", err)
	}

	app := &appctx.App{Config: &config.Config{MappingFile: overlay}}

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	if err := runMappings(app, cmd, nil); err != nil {
		t.Fatalf("runMappings failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "users:") || !strings.Contains(output, "jane.doe@corp.example.com") {
		t.Errorf("Expected overlay users in output, got:\n%s", output)
	}
}
