// Package store persists the seen-ledger in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/feedwatch/internal/ledger"
	"modernc.org/sqlite"
)

// SQLite primary result codes that mean the file cannot be trusted.
const (
	sqliteCorrupt = 11
	sqliteNotADB  = 26
)

type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Accounts may be checked concurrently; SQLite wants a single writer.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// OpenLedger opens the store and reads the whole ledger. A database that is
// corrupt or not SQLite at all is moved aside and replaced by an empty one:
// re-notifying once beats silently not monitoring.
func OpenLedger(ctx context.Context, path string, log *slog.Logger) (*Store, *ledger.Ledger, error) {
	st, l, err := openAndLoad(ctx, path, log)
	if err == nil {
		return st, l, nil
	}
	if !IsCorrupt(err) {
		return nil, nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, nil, fmt.Errorf("move corrupt ledger aside: %w", errors.Join(err, renameErr))
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		_ = os.Remove(path + suffix)
	}

	if log != nil {
		log.WarnContext(ctx, "Ledger is corrupt so a fresh one is created",
			"error", err,
			"path", path,
			"movedTo", aside)
	}

	return openAndLoad(ctx, path, log)
}

func openAndLoad(ctx context.Context, path string, log *slog.Logger) (*Store, *ledger.Ledger, error) {
	st, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	st.log = log

	l, err := st.Load(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	return st, l, nil
}

// Inspect loads the ledger at path without creating, migrating or moving
// anything. A missing file yields an error matching os.ErrNotExist.
func Inspect(ctx context.Context, path string) (*ledger.Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat ledger: %w", err)
	}

	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	st := &Store{db: db, path: path}
	defer func() { _ = st.Close() }()

	if err := checkSchema(ctx, db); err != nil {
		return nil, err
	}
	return st.Load(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Load reads every ledger entry. An unreadable last_check is treated as
// never checked; the handle's seen ids are kept.
func (s *Store) Load(ctx context.Context) (*ledger.Ledger, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	entries := make(map[string]ledger.Entry)

	rows, err := s.db.QueryContext(ctx, "SELECT handle, last_check FROM ledger_entries")
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}
	for rows.Next() {
		var handle, lastCheck string
		if err := rows.Scan(&handle, &lastCheck); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		ts, err := parseTime(lastCheck)
		if err != nil {
			if s.log != nil {
				s.log.WarnContext(ctx, "Failed to parse last check, treating account as never checked",
					"error", err,
					"handle", handle)
			}
			ts = time.Time{}
		}
		entries[handle] = ledger.Entry{LastCheck: ts}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT handle, post_id FROM seen_ids ORDER BY handle, position")
	if err != nil {
		return nil, fmt.Errorf("load seen ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var handle, postID string
		if err := rows.Scan(&handle, &postID); err != nil {
			return nil, fmt.Errorf("scan seen id: %w", err)
		}
		e := entries[handle]
		e.SeenIDs = append(e.SeenIDs, postID)
		entries[handle] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen ids: %w", err)
	}

	l := ledger.New()
	for handle, e := range entries {
		l.Set(handle, e)
	}
	return l, nil
}

// SaveEntry replaces the stored state of one handle. Other handles are
// untouched, so entries written by concurrent account checks merge.
func (s *Store) SaveEntry(ctx context.Context, handle string, e ledger.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(handle) == "" {
		return errors.New("handle is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (handle, last_check) VALUES (?, ?)
		ON CONFLICT(handle) DO UPDATE SET last_check = excluded.last_check
	`, handle, formatTime(e.LastCheck)); err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM seen_ids WHERE handle = ?", handle); err != nil {
		return fmt.Errorf("clear seen ids: %w", err)
	}

	ids := e.SeenIDs
	if len(ids) > ledger.MaxSeen {
		ids = ids[len(ids)-ledger.MaxSeen:]
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO seen_ids (handle, position, post_id) VALUES (?, ?, ?)", handle, i, id,
		); err != nil {
			return fmt.Errorf("insert seen id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger entry: %w", err)
	}
	return nil
}

// Merge folds imported ids into a handle's entry: existing ids keep their
// position, unknown ones are appended, and the later LastCheck wins.
func (s *Store) Merge(ctx context.Context, l *ledger.Ledger, handle string, in ledger.Entry) error {
	current, _ := l.Entry(handle)

	known := make(map[string]struct{}, len(current.SeenIDs))
	for _, id := range current.SeenIDs {
		known[id] = struct{}{}
	}

	merged := current
	for _, id := range in.SeenIDs {
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		merged.SeenIDs = append(merged.SeenIDs, id)
	}
	if in.LastCheck.After(merged.LastCheck) {
		merged.LastCheck = in.LastCheck
	}

	l.Set(handle, merged)
	saved, _ := l.Entry(handle)
	return s.SaveEntry(ctx, handle, saved)
}

// IsCorrupt reports whether err means the database file cannot be trusted.
func IsCorrupt(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteCorrupt, sqliteNotADB:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Time{}.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
