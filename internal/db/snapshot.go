package db

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/delegate/pkg/models"
)

const snapshotVersion = 1

type snapshotRecord struct {
	RecordType string `json:"record_type"`
}

type metaRecord struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

type memberRecord struct {
	RecordType string `json:"record_type"`
	*models.TeamMember
}

type sessionRecord struct {
	RecordType string    `json:"record_type"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	GoalID     string    `json:"goal_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_activity_at"`
}

type goalRecord struct {
	RecordType string `json:"record_type"`
	*models.Goal
}

type exchangeRecord struct {
	RecordType string `json:"record_type"`
	*models.Exchange
}

// EnableAutoSnapshot sets up a hook that exports a snapshot to path after
// every successful write.
func (db *DB) EnableAutoSnapshot(path string, onErr func(error)) {
	db.SetOnChange(func(ctx context.Context) {
		if err := db.ExportSnapshot(ctx, path); err != nil && onErr != nil {
			onErr(err)
		}
	})
}

// ExportSnapshot writes the whole database as JSON lines in dependency
// order: members, sessions, goals with their tasks, then exchanges. The
// file at path is replaced atomically.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	enc := json.NewEncoder(w)

	if err := enc.Encode(metaRecord{RecordType: "meta", Version: snapshotVersion, ExportedAt: now()}); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	members, err := db.ListMembers(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := enc.Encode(memberRecord{RecordType: "member", TeamMember: m}); err != nil {
			return fmt.Errorf("failed to write member %s: %w", m.ID, err)
		}
	}

	sessions, err := db.ListSessions(ctx)
	if err != nil {
		return err
	}
	var exchanges []*models.Exchange
	for _, summary := range sessions {
		s, err := db.GetSession(ctx, summary.ID)
		if err != nil {
			return err
		}
		if s == nil {
			continue
		}
		rec := sessionRecord{
			RecordType: "session",
			ID:         s.ID,
			Title:      s.Title,
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActivityAt,
		}
		if s.Goal != nil {
			rec.GoalID = s.Goal.ID
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write session %s: %w", s.ID, err)
		}
		exchanges = append(exchanges, s.Exchanges...)
	}

	goals, err := db.ListGoals(ctx, nil)
	if err != nil {
		return err
	}
	for _, g := range goals {
		if err := enc.Encode(goalRecord{RecordType: "goal", Goal: g}); err != nil {
			return fmt.Errorf("failed to write goal %s: %w", g.ID, err)
		}
	}

	for _, e := range exchanges {
		if err := enc.Encode(exchangeRecord{RecordType: "exchange", Exchange: e}); err != nil {
			return fmt.Errorf("failed to write exchange %s: %w", e.ID, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ImportSnapshot reads a snapshot written by ExportSnapshot. Records whose
// id already exists are skipped, so importing the same file twice is a
// no-op.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		// Live goal links are applied last since goals follow sessions.
		links := map[string]string{}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var base snapshotRecord
			if err := json.Unmarshal(line, &base); err != nil {
				return fmt.Errorf("failed to unmarshal base record: %w", err)
			}

			switch base.RecordType {
			case "meta":
				var meta metaRecord
				if err := json.Unmarshal(line, &meta); err != nil {
					return fmt.Errorf("failed to unmarshal meta: %w", err)
				}
				if meta.Version > snapshotVersion {
					return fmt.Errorf("unsupported snapshot version %d", meta.Version)
				}
			case "member":
				var m models.TeamMember
				if err := json.Unmarshal(line, &m); err != nil {
					return fmt.Errorf("failed to unmarshal member: %w", err)
				}
				if err := importMember(ctx, tx, &m); err != nil {
					return err
				}
			case "session":
				var s sessionRecord
				if err := json.Unmarshal(line, &s); err != nil {
					return fmt.Errorf("failed to unmarshal session: %w", err)
				}
				inserted, err := importSession(ctx, tx, &s)
				if err != nil {
					return err
				}
				if inserted && s.GoalID != "" {
					links[s.ID] = s.GoalID
				}
			case "goal":
				var g models.Goal
				if err := json.Unmarshal(line, &g); err != nil {
					return fmt.Errorf("failed to unmarshal goal: %w", err)
				}
				if err := db.importGoal(ctx, tx, &g); err != nil {
					return err
				}
			case "exchange":
				var e models.Exchange
				if err := json.Unmarshal(line, &e); err != nil {
					return fmt.Errorf("failed to unmarshal exchange: %w", err)
				}
				if err := importExchange(ctx, tx, &e); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown record type %q", base.RecordType)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("scanner error: %w", err)
		}

		for sessionID, goalID := range links {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions SET goal_id = ? WHERE id = ?`, goalID, sessionID,
			); err != nil {
				return fmt.Errorf("failed to link goal %s: %w", goalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func importMember(ctx context.Context, tx *sql.Tx, m *models.TeamMember) error {
	skills, err := encodeStrings(m.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO members (id, name, email, role, skills, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Email, m.Role, skills, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to import member %s: %w", m.Name, err)
	}
	return nil
}

func importSession(ctx context.Context, tx *sql.Tx, s *sessionRecord) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (id, title, created_at, last_activity_at)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.Title, s.CreatedAt, s.LastActive)
	if err != nil {
		return false, fmt.Errorf("failed to import session %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) importGoal(ctx context.Context, tx *sql.Tx, g *models.Goal) error {
	existing, err := db.getGoal(ctx, tx, g.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	for _, t := range g.Tasks {
		if t.AssignedTo == nil {
			continue
		}
		m, err := db.getMember(ctx, tx, `WHERE id = ?`, t.AssignedTo.MemberID)
		if err != nil {
			return err
		}
		// Assignees missing from the target database are dropped.
		if m == nil {
			t.AssignedTo = nil
		}
	}
	if err := db.createGoal(ctx, tx, g); err != nil {
		return fmt.Errorf("failed to import goal %s: %w", g.ID, err)
	}
	return nil
}

func importExchange(ctx context.Context, tx *sql.Tx, e *models.Exchange) error {
	var goalID any
	if e.GoalID != "" {
		goalID = e.GoalID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO exchanges (id, session_id, seq, user_text, ai_text, goal_id, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM exchanges WHERE session_id = ?), ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.SessionID, e.UserText, e.AIText, goalID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to import exchange %s: %w", e.ID, err)
	}
	return nil
}
