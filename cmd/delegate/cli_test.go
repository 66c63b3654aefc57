package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ldi/delegate/internal/config"
	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/pkg/models"
)

// setupConfig writes a config pointing at a database in a temp dir and
// returns the config path.
func setupConfig(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(tmpDir, "delegate.db")
	cfg.SnapshotPath = filepath.Join(tmpDir, "snapshot.jsonl")
	cfg.Logging.Level = "error"
	cfg.Team = config.SampleTeam()

	path := filepath.Join(tmpDir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestClassify(t *testing.T) {
	cfgFile := setupConfig(t)

	output, err := execute(t, "--config", cfgFile, "classify", "Build", "an", "Android", "app")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if !strings.Contains(output, "Archetype:    mobile") || !strings.Contains(output, "Goal request: yes") {
		t.Errorf("unexpected classification:\n%s", output)
	}

	output, err = execute(t, "--config", cfgFile, "classify", "hello there")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if !strings.Contains(output, "Goal request: no") {
		t.Errorf("expected a greeting not to be a goal request:\n%s", output)
	}
}

func TestPlan(t *testing.T) {
	cfgFile := setupConfig(t)

	output, err := execute(t, "--config", cfgFile, "plan", "We need a new website")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	for _, want := range []string{
		"Website Development (website)",
		"Frontend development",
		"Total: 98h (13 working days)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	// Drafting stores nothing.
	output, err = execute(t, "--config", cfgFile, "sessions")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if !strings.Contains(output, "No sessions yet.") {
		t.Errorf("expected no sessions after planning:\n%s", output)
	}
}

func TestTeamAndSessions(t *testing.T) {
	cfgFile := setupConfig(t)

	output, err := execute(t, "--config", cfgFile, "team")
	if err != nil {
		t.Fatalf("team failed: %v", err)
	}
	for _, name := range []string{"Priya", "Diego", "Mei", "Sam"} {
		if !strings.Contains(output, name) {
			t.Errorf("team output missing %s:\n%s", name, output)
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.CreateSession(context.Background(), &models.Session{Title: "Bakery relaunch"}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	database.Close()

	output, err = execute(t, "--config", cfgFile, "sessions")
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if !strings.Contains(output, "Bakery relaunch") {
		t.Errorf("sessions output missing the session:\n%s", output)
	}

	if _, err := os.Stat(cfg.SnapshotPath); err != nil {
		t.Errorf("expected seeding to export a snapshot: %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n  format: console\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := execute(t, "--config", path, "team"); err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("expected a config error, got %v", err)
	}
}

func TestArgs(t *testing.T) {
	cfgFile := setupConfig(t)

	if _, err := execute(t, "--config", cfgFile, "classify"); err == nil {
		t.Error("expected classify without text to fail")
	}
	if _, err := execute(t, "--config", cfgFile, "frobnicate"); err == nil {
		t.Error("expected an unknown command to fail")
	}
}
