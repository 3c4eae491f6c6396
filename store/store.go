// Package store persists party snapshots, the asset book, factory settings
// and the record journal in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/CytonicMC/Cyparty/assets"
	"github.com/CytonicMC/Cyparty/codec"
	"github.com/CytonicMC/Cyparty/events"
	"github.com/CytonicMC/Cyparty/parties"
	"github.com/CytonicMC/Cyparty/store/migrations"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store is the SQLite-backed ledger store.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ parties.Store    = (*Store)(nil)
	_ events.Publisher = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveParty upserts the snapshot of one party.
func (s *Store) SaveParty(ctx context.Context, snap parties.Snapshot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(snap.ID) == "" {
		return fmt.Errorf("party id is required")
	}
	data, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode party %s: %w", snap.ID, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO parties (id, mode, snapshot, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET mode = excluded.mode, snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		snap.ID, snap.Mode, data, toMillis(time.Now()),
	)
	if err != nil {
		return wrapSQLiteError(fmt.Sprintf("save party %s", snap.ID), err)
	}
	return nil
}

// GetParty loads one party snapshot.
func (s *Store) GetParty(ctx context.Context, id uuid.UUID) (parties.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return parties.Snapshot{}, err
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT snapshot FROM parties WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return parties.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return parties.Snapshot{}, fmt.Errorf("get party %s: %w", id, err)
	}
	var snap parties.Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return parties.Snapshot{}, fmt.Errorf("decode party %s: %w", id, err)
	}
	return snap, nil
}

// ListParties loads every party snapshot. An empty mode matches all.
func (s *Store) ListParties(ctx context.Context, mode string) ([]parties.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT id, snapshot FROM parties ORDER BY rowid`
	args := []any{}
	if mode != "" {
		query = `SELECT id, snapshot FROM parties WHERE mode = ? ORDER BY rowid`
		args = append(args, mode)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()

	var snaps []parties.Snapshot
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		var snap parties.Snapshot
		if err := codec.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode party %s: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return snaps, nil
}

// SaveBalances replaces the stored asset book.
func (s *Store) SaveBalances(ctx context.Context, snap assets.Snapshot) error {
	return s.saveSingleton(ctx, "balances", snap)
}

// LoadBalances returns the stored asset book, or nil if none was saved.
func (s *Store) LoadBalances(ctx context.Context) (*assets.Snapshot, error) {
	var snap assets.Snapshot
	ok, err := s.loadSingleton(ctx, "balances", &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// SaveFactory replaces the stored factory settings.
func (s *Store) SaveFactory(ctx context.Context, snap parties.FactorySnapshot) error {
	return s.saveSingleton(ctx, "factory", snap)
}

// LoadFactory returns the stored factory settings, or nil if none were saved.
func (s *Store) LoadFactory(ctx context.Context) (*parties.FactorySnapshot, error) {
	var snap parties.FactorySnapshot
	ok, err := s.loadSingleton(ctx, "factory", &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// Publish appends rec to the record journal.
func (s *Store) Publish(ctx context.Context, rec events.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", rec.Kind, err)
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO records (party_id, kind, payload, at) VALUES (?, ?, ?, ?)`,
		rec.PartyID.String(), string(rec.Kind), string(payload), toMillis(at),
	)
	if err != nil {
		return wrapSQLiteError(fmt.Sprintf("append %s record", rec.Kind), err)
	}
	return nil
}

// Records returns the journal of one party in emission order. The nil
// UUID selects factory records.
func (s *Store) Records(ctx context.Context, partyID uuid.UUID) ([]events.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT payload, at FROM records WHERE party_id = ? ORDER BY seq`, partyID.String())
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []events.Record
	for rows.Next() {
		var (
			payload string
			at      int64
		)
		if err := rows.Scan(&payload, &at); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec events.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		rec.At = fromMillis(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) saveSingleton(ctx context.Context, table string, v any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO `+table+` (id, snapshot, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		data, toMillis(time.Now()),
	)
	if err != nil {
		return wrapSQLiteError("save "+table, err)
	}
	return nil
}

func (s *Store) loadSingleton(ctx context.Context, table string, v any) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT snapshot FROM `+table+` WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", table, err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", table, err)
	}
	return true, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrBusy is returned when SQLite could not take its lock in time.
var ErrBusy = errors.New("database is busy")

func wrapSQLiteError(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w: %v", op, ErrBusy, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
