package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded projector event.
type Entry struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	ProjectorID string    `json:"projector_id"`
	Type        string    `json:"type"`
	Data        int       `json:"data"`
	Connected   bool      `json:"connected"`
	Flags       []string  `json:"flags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository stores and queries projector event history.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, projectorID string, since time.Time, limit int) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteRepository keeps history in the projector_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an entry. EventID and CreatedAt are generated if empty,
// and ID is set from the inserted row.
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry.EventID == "" {
		entry.EventID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	flags := entry.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshalling event flags: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO projector_events (event_id, projector_id, event_type, data, connected, flags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EventID, entry.ProjectorID, entry.Type, entry.Data,
		entry.Connected, string(flagsJSON),
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting projector event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading projector event id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns a projector's events at or after since, most recent first.
// A zero since returns the whole history. limit is clamped to
// [1, MaxLimit]; values <= 0 select DefaultLimit.
func (r *SQLiteRepository) List(ctx context.Context, projectorID string, since time.Time, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	query := `SELECT id, event_id, projector_id, event_type, data, connected, flags, created_at
		FROM projector_events WHERE projector_id = ?`
	args := []any{projectorID}
	if !since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, since.UTC().Format(timeLayout))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying projector events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var flagsJSON, createdAt string
		if err := rows.Scan(&e.ID, &e.EventID, &e.ProjectorID, &e.Type, &e.Data,
			&e.Connected, &flagsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning projector event: %w", err)
		}

		if flagsJSON != "" && flagsJSON != "[]" {
			if err := json.Unmarshal([]byte(flagsJSON), &e.Flags); err != nil {
				return nil, fmt.Errorf("decoding flags of event %d: %w", e.ID, err)
			}
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projector events: %w", err)
	}
	return entries, nil
}

// Prune deletes events created before olderThan and returns how many
// rows were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM projector_events WHERE created_at < ?",
		olderThan.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning projector events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned events: %w", err)
	}
	return n, nil
}

// ClampLimit applies the List page size rules.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
