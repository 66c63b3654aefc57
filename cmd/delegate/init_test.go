package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ldi/delegate/internal/config"
	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/pkg/models"
)

// execute runs the CLI with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()

	output, err := execute(t, "init", tmpDir)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(output, "✓ Seeded 4 team members") {
		t.Errorf("expected the sample team to be seeded, got:\n%s", output)
	}

	delegateDir := filepath.Join(tmpDir, config.Dir)
	content, err := os.ReadFile(filepath.Join(delegateDir, ".gitignore"))
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if string(content) != "delegate.db*\n" {
		t.Errorf(".gitignore content mismatch: got %q", string(content))
	}

	cfgFile := filepath.Join(tmpDir, config.DefaultPath)
	written, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	if len(written.Team) != len(config.SampleTeam()) {
		t.Errorf("expected the sample team in the config, got %d members", len(written.Team))
	}

	database, err := db.Open(filepath.Join(delegateDir, "delegate.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	members, err := database.ListMembers(context.Background())
	if err != nil {
		t.Fatalf("failed to list members: %v", err)
	}
	if len(members) != 4 {
		t.Errorf("expected 4 members, got %d", len(members))
	}
}

func TestInitIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := execute(t, "init", tmpDir); err != nil {
		t.Fatalf("first init failed: %v", err)
	}

	gitignorePath := filepath.Join(tmpDir, config.Dir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("old-content\n"), 0644); err != nil {
		t.Fatalf("failed to overwrite .gitignore: %v", err)
	}

	output, err := execute(t, "init", tmpDir)
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if strings.Contains(output, "Seeded") {
		t.Errorf("expected no members to be seeded twice, got:\n%s", output)
	}
	if strings.Contains(output, "Wrote") {
		t.Errorf("expected the existing config to be kept, got:\n%s", output)
	}

	content, err := os.ReadFile(gitignorePath)
	if err != nil {
		t.Fatalf("failed to read .gitignore: %v", err)
	}
	if string(content) != "delegate.db*\n" {
		t.Errorf(".gitignore was not overwritten: got %q", string(content))
	}
}

func TestInitWithExistingSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	delegateDir := filepath.Join(tmpDir, config.Dir)
	if err := os.MkdirAll(delegateDir, 0755); err != nil {
		t.Fatalf("failed to create %s dir: %v", config.Dir, err)
	}

	// A snapshot exported from another checkout.
	source, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	defer source.Close()
	ctx := context.Background()
	if err := source.Init(ctx); err != nil {
		t.Fatalf("failed to init source db: %v", err)
	}
	if err := source.CreateMember(ctx, &models.TeamMember{Name: "Ana", Role: "Engineer", Skills: []string{"go"}}); err != nil {
		t.Fatalf("failed to create member: %v", err)
	}
	if err := source.ExportSnapshot(ctx, filepath.Join(delegateDir, "snapshot.jsonl")); err != nil {
		t.Fatalf("failed to export snapshot: %v", err)
	}

	output, err := execute(t, "init", tmpDir)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(output, "✓ Imported snapshot") {
		t.Errorf("expected the snapshot to be imported, got:\n%s", output)
	}

	database, err := db.Open(filepath.Join(delegateDir, "delegate.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	ana, err := database.GetMemberByName(ctx, "Ana")
	if err != nil {
		t.Fatalf("failed to look up member: %v", err)
	}
	if ana == nil {
		t.Error("expected the imported member to exist")
	}
}
