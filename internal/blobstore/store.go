package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/opencontainers/go-digest"
	_ "modernc.org/sqlite"

	"squeeze/internal/config"
	"squeeze/internal/logging"
)

// ErrLocked reports that another squeeze process holds the cache database.
// The reference map and capacity accounting assume a single writing process,
// so callers must treat this as store-unavailable and degrade.
var ErrLocked = errors.New("cache store is locked by another process")

// DatabaseFileName is the SQLite file created under the cache directory.
const DatabaseFileName = "cache.db"

const lockFileName = "store.lock"

// Entry is one durable cache record: business payload plus the metadata the
// governor and display paths need.
type Entry struct {
	Key         string
	DisplayName string
	MimeType    string
	SizeBytes   int64
	InsertedAt  time.Time
	Digest      string
	Payload     []byte
}

// EntryInfo is entry metadata without the payload, used for scans and
// listings where loading blobs would be wasteful.
type EntryInfo struct {
	Key         string
	DisplayName string
	MimeType    string
	SizeBytes   int64
	InsertedAt  time.Time
}

// Store manages cache persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// Open initializes or connects to the cache database, acquires the
// single-writer lock, and applies migrations.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Paths.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.CacheDir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	dbPath := filepath.Join(cfg.Paths.CacheDir, DatabaseFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:     db,
		path:   dbPath,
		lock:   lock,
		logger: logging.NewComponentLogger(logger, "blobstore"),
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return store, nil
}

// Close releases the single-writer lock and closes the database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			logging.WarnWithContext(s.logger, "failed to release store lock", "store_unlock_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the lock file if no other process is running"),
				logging.String(logging.FieldImpact, "next open may report the store as locked"),
			)
		}
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path for diagnostics.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

const entryColumns = `key, display_name, mime_type, size_bytes, inserted_at_ms, digest, payload`

const infoColumns = `key, display_name, mime_type, size_bytes, inserted_at_ms`

// Put inserts or overwrites the entry stored under entry.Key. Size and digest
// are derived from the payload here so accounting can never drift from the
// stored bytes. A zero InsertedAt is stamped with the current time; an
// overwrite therefore makes the entry the newest in eviction order.
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || strings.TrimSpace(entry.Key) == "" {
		return errors.New("put requires an entry with a key")
	}

	insertedAt := entry.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = time.Now()
	}
	entry.InsertedAt = insertedAt
	entry.SizeBytes = int64(len(entry.Payload))
	entry.Digest = digest.FromBytes(entry.Payload).String()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO entries (key, display_name, mime_type, size_bytes, inserted_at_ms, digest, payload)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET
             display_name = excluded.display_name,
             mime_type = excluded.mime_type,
             size_bytes = excluded.size_bytes,
             inserted_at_ms = excluded.inserted_at_ms,
             digest = excluded.digest,
             payload = excluded.payload`,
		entry.Key,
		nullableString(entry.DisplayName),
		nullableString(entry.MimeType),
		entry.SizeBytes,
		insertedAt.UnixMilli(),
		entry.Digest,
		entry.Payload,
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Get fetches the entry stored under key. A missing key returns (nil, nil).
// Payloads are verified against their recorded digest; a mismatch is treated
// as corruption, the row is removed, and the lookup degrades to a miss.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE key = ?`, key)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	if computed := digest.FromBytes(entry.Payload).String(); computed != entry.Digest {
		logging.WarnWithContext(s.logger, "payload digest mismatch, dropping entry", "entry_corrupt",
			logging.String(logging.FieldStoreKey, key),
			logging.String("expected_digest", entry.Digest),
			logging.String("computed_digest", computed),
			logging.String(logging.FieldErrorHint, "the entry will be restored on next stage or fetch"),
			logging.String(logging.FieldImpact, "cached copy discarded, consumers fall back to source"),
		)
		if _, delErr := s.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("drop corrupt entry: %w", delErr)
		}
		return nil, nil
	}
	return entry, nil
}

// Delete removes the entry stored under key, reporting whether a row existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns the number removed. Keys derived from sanitized tokens may
// contain underscores, so the prefix is escaped before matching.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key LIKE ? ESCAPE '\'`, prefixPattern(prefix))
	if err != nil {
		return 0, fmt.Errorf("delete entries by prefix: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete by prefix rows affected: %w", err)
	}
	return affected, nil
}

// Clear removes every entry and returns the number deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("clear entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear rows affected: %w", err)
	}
	return affected, nil
}

// ScanOldest returns entry metadata in insertion order, oldest first. Ties on
// the millisecond stamp break on key order so eviction planning is
// deterministic.
func (s *Store) ScanOldest(ctx context.Context) ([]EntryInfo, error) {
	return s.queryInfos(ctx, `SELECT `+infoColumns+` FROM entries ORDER BY inserted_at_ms ASC, key ASC`)
}

// List returns entry metadata newest first for display surfaces.
func (s *Store) List(ctx context.Context) ([]EntryInfo, error) {
	return s.queryInfos(ctx, `SELECT `+infoColumns+` FROM entries ORDER BY inserted_at_ms DESC, key DESC`)
}

// NewestKeyWithPrefix returns the most recently inserted key under
// prefix, or "" when nothing matches. This is how a fresh process finds
// entries recorded by an earlier one: store keys are namespaced, so the
// prefix alone identifies the payload a business key refers to.
func (s *Store) NewestKeyWithPrefix(ctx context.Context, prefix string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key FROM entries WHERE key LIKE ? ESCAPE '\' ORDER BY inserted_at_ms DESC, key DESC LIMIT 1`,
		prefixPattern(prefix))
	var key string
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("newest key by prefix: %w", err)
	}
	return key, nil
}

func (s *Store) queryInfos(ctx context.Context, query string) ([]EntryInfo, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	defer rows.Close()

	var infos []EntryInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry info: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return infos, nil
}

// TotalSize returns the sum of payload sizes across all entries.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM entries`)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum entry sizes: %w", err)
	}
	return total, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (*Entry, error) {
	var (
		entry       Entry
		displayName sql.NullString
		mimeType    sql.NullString
		insertedMs  int64
	)
	if err := scanner.Scan(
		&entry.Key,
		&displayName,
		&mimeType,
		&entry.SizeBytes,
		&insertedMs,
		&entry.Digest,
		&entry.Payload,
	); err != nil {
		return nil, err
	}
	entry.DisplayName = displayName.String
	entry.MimeType = mimeType.String
	entry.InsertedAt = time.UnixMilli(insertedMs)
	return &entry, nil
}

func scanInfo(scanner rowScanner) (EntryInfo, error) {
	var (
		info        EntryInfo
		displayName sql.NullString
		mimeType    sql.NullString
		insertedMs  int64
	)
	if err := scanner.Scan(
		&info.Key,
		&displayName,
		&mimeType,
		&info.SizeBytes,
		&insertedMs,
	); err != nil {
		return EntryInfo{}, err
	}
	info.DisplayName = displayName.String
	info.MimeType = mimeType.String
	info.InsertedAt = time.UnixMilli(insertedMs)
	return info, nil
}

func nullableString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

// prefixPattern escapes LIKE wildcards in prefix and appends the match-all
// suffix. Sanitized tokens keep underscores, which LIKE would otherwise
// treat as single-character wildcards.
func prefixPattern(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}
