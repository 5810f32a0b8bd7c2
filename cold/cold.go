package cold

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/strata-ai/strata/record"
)

// Default tuning values applied by NewStore when the option is zero.
const (
	DefaultExpiry     = 365 * 24 * time.Hour
	DefaultBatchSize  = 25
	DefaultBatchDelay = 100 * time.Millisecond
)

// ErrInvalidKey is returned when an archive key does not match the
// type/year/month/day/id layout.
var ErrInvalidKey = errors.New("cold: invalid archive key")

const objectExt = ".json.gz"

// Options configures the filesystem archive.
type Options struct {
	// Dir is the root directory for archived objects. Required.
	Dir string

	// Expiry is the hard retention window. Objects whose archive time is
	// older than now-Expiry are removed by Cleanup regardless of record
	// importance. Default: 365 days.
	Expiry time.Duration

	// BatchSize bounds how many records a single BulkArchive batch writes
	// before pausing. Default: 25.
	BatchSize int

	// BatchDelay is the pause between BulkArchive batches. Default: 100ms.
	BatchDelay time.Duration
}

// Store is the filesystem-backed cold tier.
type Store struct {
	dir        string
	expiry     time.Duration
	batchSize  int
	batchDelay time.Duration
}

// NewStore creates the archive root directory if needed.
func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("cold: Dir is required")
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cold: create archive dir: %w", err)
	}
	return &Store{
		dir:        opts.Dir,
		expiry:     opts.Expiry,
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
	}, nil
}

// ArchiveResult reports where a record was stored and how well it
// compressed.
type ArchiveResult struct {
	Key            string `json:"key"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
}

// CompressionRatio returns original/compressed size, or 0 when the
// compressed size is unknown.
func (r ArchiveResult) CompressionRatio() float64 {
	if r.CompressedSize <= 0 {
		return 0
	}
	return float64(r.OriginalSize) / float64(r.CompressedSize)
}

// Key builds the date-partitioned archive key for a record. The date
// components come from the record's creation time so a record's key is
// stable across re-archival.
func Key(rec *record.Record) string {
	t := rec.CreatedAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s", rec.Type, t.Year(), t.Month(), t.Day(), rec.ID)
}

// keyPath maps an archive key to its object path, rejecting keys that
// escape the archive root or do not have the expected shape.
func (s *Store) keyPath(key string) (string, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)+objectExt), nil
}

// Archive serializes, compresses, and stores a record, returning its key
// and size accounting. An existing object under the same key is replaced.
func (s *Store) Archive(ctx context.Context, rec *record.Record) (ArchiveResult, error) {
	if err := ctx.Err(); err != nil {
		return ArchiveResult{}, err
	}
	if rec == nil || rec.ID == "" {
		return ArchiveResult{}, record.ErrInvalidID
	}

	key := Key(rec)
	path, err := s.keyPath(key)
	if err != nil {
		return ArchiveResult{}, err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("cold: marshal record %s: %w", rec.ID, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ArchiveResult{}, fmt.Errorf("cold: create partition dir: %w", err)
	}

	// Write to a temp file and rename so a crashed write never leaves a
	// truncated object under a valid key.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("cold: create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	if _, err := gz.Write(raw); err != nil {
		tmp.Close()
		return ArchiveResult{}, fmt.Errorf("cold: compress record %s: %w", rec.ID, err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return ArchiveResult{}, fmt.Errorf("cold: compress record %s: %w", rec.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return ArchiveResult{}, fmt.Errorf("cold: write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return ArchiveResult{}, fmt.Errorf("cold: store object %s: %w", key, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("cold: stat object %s: %w", key, err)
	}
	return ArchiveResult{
		Key:            key,
		OriginalSize:   int64(len(raw)),
		CompressedSize: info.Size(),
	}, nil
}

// Retrieve decompresses and deserializes the record stored under key.
// Returns record.ErrNotFound when no object exists.
func (s *Store) Retrieve(ctx context.Context, key string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("cold: open object %s: %w", key, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cold: decompress object %s: %w", key, err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("cold: read object %s: %w", key, err)
	}

	var stored struct {
		record.Record
		RawPayload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cold: unmarshal object %s: %w", key, err)
	}
	rec := stored.Record
	if len(stored.RawPayload) > 0 {
		payload, err := record.DecodePayload(rec.Type, stored.RawPayload)
		if err != nil {
			return nil, fmt.Errorf("cold: object %s: %w", key, err)
		}
		rec.Payload = payload
	}
	return &rec, nil
}

// Delete removes the object under key. Deleting an absent object is a
// no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cold: delete object %s: %w", key, err)
	}
	return nil
}

// ListPage is one page of archive keys.
type ListPage struct {
	Keys []string `json:"keys"`

	// NextOffset is the offset of the page after this one, or -1 when
	// the listing is exhausted.
	NextOffset int `json:"next_offset"`
}

// List enumerates archive keys under a key prefix in lexicographic order.
// An empty prefix lists the whole archive. Limit 0 means no page cap.
func (s *Store) List(ctx context.Context, prefix string, offset, limit int) (ListPage, error) {
	keys, err := s.allKeys(ctx, prefix)
	if err != nil {
		return ListPage{}, err
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(keys) {
		return ListPage{Keys: []string{}, NextOffset: -1}, nil
	}
	end := len(keys)
	next := -1
	if limit > 0 && offset+limit < end {
		end = offset + limit
		next = end
	}
	return ListPage{Keys: keys[offset:end], NextOffset: next}, nil
}

func (s *Store) allKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), objectExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), objectExt)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cold: list archive: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// CleanupResult summarizes one retention pass.
type CleanupResult struct {
	Scanned      int   `json:"scanned"`
	Removed      int   `json:"removed"`
	BytesFreed   int64 `json:"bytes_freed"`
	FailureCount int   `json:"failure_count"`
}

// Cleanup removes objects archived before the retention window, keyed on
// the object's modification time. Importance never exempts an object here;
// eligibility for entering the cold tier is decided upstream.
func (s *Store) Cleanup(ctx context.Context) (CleanupResult, error) {
	cutoff := time.Now().Add(-s.expiry)
	var res CleanupResult

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), objectExt) {
			return nil
		}
		res.Scanned++

		info, err := d.Info()
		if err != nil {
			res.FailureCount++
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			res.FailureCount++
			return nil
		}
		res.Removed++
		res.BytesFreed += info.Size()
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("cold: cleanup: %w", err)
	}
	return res, nil
}

// BulkArchive archives records in fixed-size batches with a pause in
// between, so a large migration sweep does not saturate the backing store.
// Per-record failures are collected by id; a failed record does not abort
// the batch. Results are keyed by record id.
func (s *Store) BulkArchive(ctx context.Context, recs []*record.Record) (map[string]ArchiveResult, map[string]error) {
	results := make(map[string]ArchiveResult, len(recs))
	failures := make(map[string]error)

	for start := 0; start < len(recs); start += s.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				for _, rec := range recs[start:] {
					failures[rec.ID] = ctx.Err()
				}
				return results, failures
			case <-time.After(s.batchDelay):
			}
		}

		end := start + s.batchSize
		if end > len(recs) {
			end = len(recs)
		}
		for _, rec := range recs[start:end] {
			res, err := s.Archive(ctx, rec)
			if err != nil {
				failures[rec.ID] = err
				continue
			}
			results[rec.ID] = res
		}
	}
	return results, failures
}
