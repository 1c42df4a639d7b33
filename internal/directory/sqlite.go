// ABOUTME: SQLite implementation of the agent directory using modernc.org/sqlite
// ABOUTME: Stores registrations, collaborations, and advisory preview listeners

package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDirectory implements Directory backed by a SQLite database.
type SQLiteDirectory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteDirectory opens (or creates) the directory database at the given
// path. Use ":memory:" for an ephemeral directory. Parent directories are
// created if needed and the schema is applied automatically.
func NewSQLiteDirectory(path string) (*SQLiteDirectory, error) {
	logger := slog.Default().With("component", "directory")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating directory database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	d := &SQLiteDirectory{db: db, logger: logger}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *SQLiteDirectory) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registrations (
		agent_id      TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		last_activity TIMESTAMP NOT NULL,
		collaborators TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS collaborations (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		source_agent_id TEXT NOT NULL,
		target_agent_id TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preview_listeners (
		agent_id      TEXT NOT NULL,
		connection_id TEXT NOT NULL,
		registered_at TIMESTAMP NOT NULL,
		PRIMARY KEY (agent_id, connection_id)
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("creating directory schema: %w", err)
	}
	return nil
}

// GetRegistration returns the registration snapshot for one agent.
func (d *SQLiteDirectory) GetRegistration(ctx context.Context, agentID string) (*Registration, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT agent_id, status, last_activity, collaborators FROM registrations WHERE agent_id = ?`,
		agentID)

	var reg Registration
	var collaboratorsJSON string
	if err := row.Scan(&reg.AgentID, &reg.Status, &reg.LastActivity, &collaboratorsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying registration: %w", err)
	}

	if err := json.Unmarshal([]byte(collaboratorsJSON), &reg.Collaborators); err != nil {
		return nil, fmt.Errorf("decoding collaborators for %s: %w", agentID, err)
	}
	return &reg, nil
}

// UpsertRegistration creates or replaces an agent's registration. A nil
// collaborator list is stored as empty.
func (d *SQLiteDirectory) UpsertRegistration(ctx context.Context, reg *Registration) error {
	collaborators := reg.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	data, err := json.Marshal(collaborators)
	if err != nil {
		return fmt.Errorf("encoding collaborators: %w", err)
	}

	lastActivity := reg.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now().UTC()
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO registrations (agent_id, status, last_activity, collaborators)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			status = excluded.status,
			last_activity = excluded.last_activity,
			collaborators = excluded.collaborators`,
		reg.AgentID, reg.Status, lastActivity, string(data))
	if err != nil {
		return fmt.Errorf("upserting registration: %w", err)
	}
	return nil
}

// ListRegistrations returns all registrations ordered by agent id.
func (d *SQLiteDirectory) ListRegistrations(ctx context.Context) ([]*Registration, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT agent_id, status, last_activity, collaborators FROM registrations ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	defer rows.Close()

	var regs []*Registration
	for rows.Next() {
		var reg Registration
		var collaboratorsJSON string
		if err := rows.Scan(&reg.AgentID, &reg.Status, &reg.LastActivity, &collaboratorsJSON); err != nil {
			return nil, fmt.Errorf("scanning registration: %w", err)
		}
		if err := json.Unmarshal([]byte(collaboratorsJSON), &reg.Collaborators); err != nil {
			return nil, fmt.Errorf("decoding collaborators for %s: %w", reg.AgentID, err)
		}
		regs = append(regs, &reg)
	}
	return regs, rows.Err()
}

// TouchActivity bumps an agent's last-activity timestamp.
func (d *SQLiteDirectory) TouchActivity(ctx context.Context, agentID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE registrations SET last_activity = ? WHERE agent_id = ?`,
		time.Now().UTC(), agentID)
	if err != nil {
		return fmt.Errorf("touching activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching activity: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// StartCollaboration records a collaboration between two agents and links
// them as collaborators, all in one transaction. Fails without side effects
// when either agent is missing or offline.
func (d *SQLiteDirectory) StartCollaboration(ctx context.Context, sourceAgentID, targetAgentID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning collaboration tx: %w", err)
	}
	defer tx.Rollback()

	for _, agentID := range []string{sourceAgentID, targetAgentID} {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM registrations WHERE agent_id = ?`, agentID).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrNotFound, agentID)
		}
		if err != nil {
			return fmt.Errorf("checking agent %s: %w", agentID, err)
		}
		if status == StatusOffline {
			return fmt.Errorf("%w: %s", ErrAgentUnavailable, agentID)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO collaborations (source_agent_id, target_agent_id, created_at) VALUES (?, ?, ?)`,
		sourceAgentID, targetAgentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording collaboration: %w", err)
	}

	if err := addCollaborator(ctx, tx, sourceAgentID, targetAgentID); err != nil {
		return err
	}
	if err := addCollaborator(ctx, tx, targetAgentID, sourceAgentID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing collaboration: %w", err)
	}

	d.logger.Debug("collaboration recorded",
		"source_agent_id", sourceAgentID,
		"target_agent_id", targetAgentID)
	return nil
}

// addCollaborator appends other to agentID's collaborator list if absent.
func addCollaborator(ctx context.Context, tx *sql.Tx, agentID, other string) error {
	var collaboratorsJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT collaborators FROM registrations WHERE agent_id = ?`, agentID).Scan(&collaboratorsJSON)
	if err != nil {
		return fmt.Errorf("reading collaborators for %s: %w", agentID, err)
	}

	var collaborators []string
	if err := json.Unmarshal([]byte(collaboratorsJSON), &collaborators); err != nil {
		return fmt.Errorf("decoding collaborators for %s: %w", agentID, err)
	}
	if slices.Contains(collaborators, other) {
		return nil
	}
	collaborators = append(collaborators, other)

	data, err := json.Marshal(collaborators)
	if err != nil {
		return fmt.Errorf("encoding collaborators for %s: %w", agentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET collaborators = ? WHERE agent_id = ?`,
		string(data), agentID); err != nil {
		return fmt.Errorf("updating collaborators for %s: %w", agentID, err)
	}
	return nil
}

// RegisterPreviewListener records an advisory observer row. Best-effort:
// callers ignore the error beyond logging.
func (d *SQLiteDirectory) RegisterPreviewListener(ctx context.Context, agentID, connectionID string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO preview_listeners (agent_id, connection_id, registered_at) VALUES (?, ?, ?)`,
		agentID, connectionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("registering preview listener: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}
