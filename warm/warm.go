package warm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
)

// Options configures the SQLite-backed warm tier.
type Options struct {
	// Path is the database file path. The parent directory is created if
	// missing. ":memory:" opens an in-memory database.
	Path string
}

// Store is the SQLite-backed warm tier.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database and applies the schema.
func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("warm: database path must not be empty")
	}

	dsn := opts.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("warm: create db dir: %w", err)
		}
		dsn = opts.Path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("warm: open db: %w", err)
	}
	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent use.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("warm: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id               TEXT PRIMARY KEY,
		type             TEXT NOT NULL,
		category         TEXT,
		title            TEXT NOT NULL,
		description      TEXT,
		content          TEXT,
		metadata         TEXT,
		tags             TEXT,
		owner_agent_id   TEXT NOT NULL,
		importance       TEXT NOT NULL DEFAULT 'medium',
		current_tier     TEXT NOT NULL DEFAULT 'warm',
		embedding        BLOB,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TEXT,
		version          INTEGER NOT NULL DEFAULT 1,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL,
		is_deleted       INTEGER NOT NULL DEFAULT 0,
		deleted_at       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
	CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_agent_id);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
	CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(current_tier);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_deleted ON memories(is_deleted);

	CREATE TABLE IF NOT EXISTS working_memories (
		memory_id      TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		task_id        TEXT,
		context_window TEXT,
		priority       INTEGER NOT NULL DEFAULT 0,
		expires_at     TEXT
	);
	CREATE TABLE IF NOT EXISTS episodic_memories (
		memory_id    TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		event        TEXT NOT NULL,
		outcome      TEXT,
		participants TEXT,
		emotion      TEXT,
		occurred_at  TEXT
	);
	CREATE TABLE IF NOT EXISTS semantic_memories (
		memory_id  TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		facts      TEXT,
		domain     TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		sources    TEXT
	);
	CREATE TABLE IF NOT EXISTS procedural_memories (
		memory_id     TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		steps         TEXT,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		prerequisites TEXT
	);
	CREATE TABLE IF NOT EXISTS shared_memories (
		memory_id       TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		source_agent_id TEXT NOT NULL,
		shared_with     TEXT,
		visibility      TEXT
	);
	CREATE TABLE IF NOT EXISTS business_memories (
		memory_id   TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		metric_name TEXT NOT NULL,
		value       REAL NOT NULL DEFAULT 0,
		target      REAL NOT NULL DEFAULT 0,
		trend       TEXT,
		period      TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Create writes the base record and its type-specific sub-record inside one
// transaction. The record must already carry its id, embedding, and
// timestamps.
func (s *Store) Create(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.ID == "" {
		return record.ErrInvalidID
	}

	contentJSON, err := marshalJSON(rec.Content)
	if err != nil {
		return fmt.Errorf("warm: marshal content: %w", err)
	}
	metadataJSON, err := marshalJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("warm: marshal metadata: %w", err)
	}
	tagsJSON, err := marshalJSON(rec.Tags)
	if err != nil {
		return fmt.Errorf("warm: marshal tags: %w", err)
	}

	var embBlob any
	if len(rec.Embedding) > 0 {
		embBlob = embedding.Encode(rec.Embedding)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warm: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, type, category, title, description, content, metadata, tags,
			owner_agent_id, importance, current_tier, embedding,
			access_count, last_accessed_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Type), rec.Category, rec.Title, rec.Description,
		contentJSON, metadataJSON, tagsJSON,
		rec.OwnerAgentID, string(rec.Importance), string(rec.CurrentTier), embBlob,
		rec.AccessCount, formatTimePtr(nullableTime(rec.LastAccessedAt)), rec.Version,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("warm: insert record %s: %w", rec.ID, err)
	}

	if err := writeSubRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("warm: commit create %s: %w", rec.ID, err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Retrieve returns a record by id and, as a side effect, increments its
// access count and refreshes its last-accessed timestamp. Soft-deleted
// records are not returned.
func (s *Store) Retrieve(ctx context.Context, id string) (*record.Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		formatTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("warm: bump access count %s: %w", id, err)
	}
	rec.AccessCount++
	rec.LastAccessedAt = now
	return rec, nil
}

// Touch increments a record's access count and refreshes its last-accessed
// timestamp without reading the row. Used to account reads that were served
// from the cache tier.
func (s *Store) Touch(ctx context.Context, id string) error {
	if id == "" {
		return record.ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ? AND is_deleted = 0`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("warm: touch record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return record.ErrNotFound
	}
	return nil
}

// Get returns a record by id without touching its access statistics. Used by
// background scans and tier transitions.
func (s *Store) Get(ctx context.Context, id string) (*record.Record, error) {
	if id == "" {
		return nil, record.ErrInvalidID
	}

	row := s.db.QueryRowContext(ctx, selectColumns+` FROM memories WHERE id = ? AND is_deleted = 0`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("warm: get record %s: %w", id, err)
	}

	if err := readSubRecord(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update rewrites the base row and replaces the sub-record in one
// transaction. The caller is responsible for having incremented Version.
func (s *Store) Update(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.ID == "" {
		return record.ErrInvalidID
	}

	contentJSON, err := marshalJSON(rec.Content)
	if err != nil {
		return fmt.Errorf("warm: marshal content: %w", err)
	}
	metadataJSON, err := marshalJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("warm: marshal metadata: %w", err)
	}
	tagsJSON, err := marshalJSON(rec.Tags)
	if err != nil {
		return fmt.Errorf("warm: marshal tags: %w", err)
	}

	var embBlob any
	if len(rec.Embedding) > 0 {
		embBlob = embedding.Encode(rec.Embedding)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warm: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET
			category = ?, title = ?, description = ?, content = ?, metadata = ?,
			tags = ?, importance = ?, current_tier = ?, embedding = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`,
		rec.Category, rec.Title, rec.Description, contentJSON, metadataJSON,
		tagsJSON, string(rec.Importance), string(rec.CurrentTier), embBlob,
		rec.Version, formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("warm: update record %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return record.ErrNotFound
	}

	if rec.Payload != nil {
		if err := deleteSubRecord(ctx, tx, rec.Type, rec.ID); err != nil {
			return err
		}
		if err := writeSubRecord(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("warm: commit update %s: %w", rec.ID, err)
	}
	return nil
}

// Delete soft-deletes a record. The row and its sub-record are kept for
// short-lived cleanup references; search and scans exclude them.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return record.ErrInvalidID
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_deleted = 1, deleted_at = ? WHERE id = ? AND is_deleted = 0`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("warm: delete record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return record.ErrNotFound
	}
	return nil
}

// SetTier updates a record's current tier, recording or clearing the cold
// archive key in its metadata. An empty archiveKey removes the entry.
func (s *Store) SetTier(ctx context.Context, id string, tier record.Tier, archiveKey string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.CurrentTier = tier
	rec.SetArchiveKey(archiveKey)

	metadataJSON, err := marshalJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("warm: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET current_tier = ?, metadata = ? WHERE id = ?`,
		string(tier), metadataJSON, id)
	if err != nil {
		return fmt.Errorf("warm: set tier %s: %w", id, err)
	}
	return nil
}

// ListOptions restricts a background scan.
type ListOptions struct {
	// Tiers restricts the scan to records currently in the given tiers.
	Tiers []record.Tier

	// Types restricts the scan to the given memory types.
	Types []record.MemoryType

	// CreatedBefore restricts the scan to records older than the given time.
	CreatedBefore *time.Time

	// Limit caps the scan size; 0 means no cap.
	Limit int
}

// List returns non-deleted records matching the scan options without
// touching access statistics. Sub-records are not loaded; scans operate on
// the base fields.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*record.Record, error) {
	query := selectColumns + ` FROM memories WHERE is_deleted = 0`
	var args []any

	if len(opts.Tiers) > 0 {
		query += ` AND current_tier IN (` + placeholders(len(opts.Tiers)) + `)`
		for _, t := range opts.Tiers {
			args = append(args, string(t))
		}
	}
	if len(opts.Types) > 0 {
		query += ` AND type IN (` + placeholders(len(opts.Types)) + `)`
		for _, t := range opts.Types {
			args = append(args, string(t))
		}
	}
	if opts.CreatedBefore != nil {
		query += ` AND created_at < ?`
		args = append(args, formatTime(*opts.CreatedBefore))
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("warm: list records: %w", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("warm: scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

// HealthCheck verifies the database answers a trivial query.
func (s *Store) HealthCheck(ctx context.Context) record.HealthStatus {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return record.NewUnhealthyStatus("sqlite query failed", map[string]any{"error": err.Error()})
	}
	return record.NewHealthyStatus("sqlite reachable")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
