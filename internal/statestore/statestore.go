// Package statestore persists bridge state in SQLite: the controller poll
// cursor, characteristic change history and the command log.
package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/hcbridge/internal/executor"
	"github.com/nerrad567/hcbridge/internal/infrastructure/database"
)

// CursorKey is the bridge_state key holding the last applied poll cursor.
const CursorKey = "poll_cursor"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrNilDB is returned by New when no database is supplied.
var ErrNilDB = errors.New("statestore: nil database")

// Change is one recorded characteristic value.
type Change struct {
	ID             int64     `json:"id"`
	Subtype        string    `json:"subtype"`
	Characteristic string    `json:"characteristic"`
	Value          any       `json:"value"`
	Remote         bool      `json:"remote"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Command is one logged controller command.
type Command struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Target    string        `json:"target"`
	DeviceID  int           `json:"device_id,omitempty"`
	Subtype   string        `json:"subtype"`
	Args      []any         `json:"args,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Store is the SQLite-backed state store.
type Store struct {
	db *database.DB
}

// New wraps a migrated database.
func New(db *database.DB) (*Store, error) {
	if db == nil || db.DB == nil {
		return nil, ErrNilDB
	}
	return &Store{db: db}, nil
}

// LoadCursor returns the stored poll cursor, or zero when none is stored.
func (s *Store) LoadCursor(ctx context.Context) (int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM bridge_state WHERE key = ?`, CursorKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading cursor: %w", err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing cursor %q: %w", raw, err)
	}
	return v, nil
}

// SaveCursor stores the poll cursor.
func (s *Store) SaveCursor(ctx context.Context, cursor int64) error {
	return s.setState(ctx, CursorKey, strconv.FormatInt(cursor, 10))
}

func (s *Store) setState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// RecordChange appends a characteristic value to the history. remote marks
// values written by a HomeKit client rather than reported by the controller.
func (s *Store) RecordChange(ctx context.Context, subtype, characteristic string, value any, remote bool, at time.Time) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling %s value: %w", characteristic, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO characteristic_history (subtype, characteristic, value, remote, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		subtype, characteristic, string(b), boolInt(remote), formatTime(at))
	if err != nil {
		return fmt.Errorf("recording change: %w", err)
	}
	return nil
}

// RecordCommand appends an executor record to the command log. Skipped
// records are not stored.
func (s *Store) RecordCommand(ctx context.Context, r executor.Record) error {
	if r.Skipped {
		return nil
	}
	args, err := json.Marshal(r.Args)
	if err != nil {
		return fmt.Errorf("marshalling command args: %w", err)
	}
	var errText *string
	if r.Err != nil {
		e := r.Err.Error()
		errText = &e
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO command_log (id, command, target, device_id, subtype, args, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Command, r.Target, r.DeviceID, r.Subtype, string(args), errText,
		formatTime(r.Started), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording command: %w", err)
	}
	return nil
}

// RecentChanges returns the newest history rows, optionally for one subtype.
func (s *Store) RecentChanges(ctx context.Context, subtype string, limit int) ([]Change, error) {
	query := `SELECT id, subtype, characteristic, value, remote, recorded_at FROM characteristic_history`
	var args []any
	if subtype != "" {
		query += ` WHERE subtype = ?`
		args = append(args, subtype)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c       Change
			raw, at string
			remote  int
		)
		if err := rows.Scan(&c.ID, &c.Subtype, &c.Characteristic, &raw, &remote, &at); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &c.Value); err != nil {
			return nil, fmt.Errorf("decoding history value: %w", err)
		}
		c.Remote = remote != 0
		c.RecordedAt = parseTime(at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentCommands returns the newest command log rows.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, target, device_id, subtype, args, error, started_at, duration_ms
		FROM command_log ORDER BY started_at DESC, id LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		var (
			c        Command
			args, at string
			errText  sql.NullString
			ms       int64
		)
		if err := rows.Scan(&c.ID, &c.Command, &c.Target, &c.DeviceID, &c.Subtype, &args, &errText, &at, &ms); err != nil {
			return nil, fmt.Errorf("scanning command row: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &c.Args); err != nil {
			return nil, fmt.Errorf("decoding command args: %w", err)
		}
		c.Error = errText.String
		c.StartedAt = parseTime(at)
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes history and command rows older than before and returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTime(before)
	var total int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM characteristic_history WHERE recorded_at < ?`,
			`DELETE FROM command_log WHERE started_at < ?`,
		} {
			res, err := tx.ExecContext(ctx, q, cutoff)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected() //nolint:errcheck // sqlite3 always reports affected rows
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return total, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
