package hot

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
)

// Key layout. Everything lives under the "mem:" prefix so an instance can
// share a Redis database with other workloads.
const (
	recKeyPrefix        = "mem:rec:"
	embHashKey          = "mem:emb"
	typeIndexPrefix     = "mem:idx:type:"
	importanceIdxPrefix = "mem:idx:imp:"
	hitsKey             = "mem:stats:hits"
	missesKey           = "mem:stats:misses"
)

// Options configures the Redis connection and cache behavior.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// TLS configuration for secure connections.
	TLS *tls.Config

	// TTL bounds how long a cached record lives. Default: 24h.
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection
	// establishment. Default: 5s.
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations.
	// Default: 3s.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations.
	// Default: 3s.
	WriteTimeout time.Duration
}

// Store is the Redis-backed hot tier.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a hot tier store and verifies connectivity with a ping.
func NewStore(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("hot: failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("hot: failed to connect to Redis: %w", err)
	}

	return &Store{client: client, ttl: opts.TTL}, nil
}

// Store caches a record under its id with the configured TTL and maintains
// the type and importance indexes plus the embedding hash.
func (s *Store) Store(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.ID == "" {
		return record.ErrInvalidID
	}

	stripped := *rec
	emb := stripped.Embedding
	stripped.Embedding = nil
	data, err := json.Marshal(&stripped)
	if err != nil {
		return fmt.Errorf("hot: marshal record %s: %w", rec.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recKeyPrefix+rec.ID, data, s.ttl)
	pipe.SAdd(ctx, typeIndexPrefix+string(rec.Type), rec.ID)
	pipe.SAdd(ctx, importanceIdxPrefix+string(rec.Importance), rec.ID)
	if len(emb) > 0 {
		pipe.HSet(ctx, embHashKey, rec.ID, string(embedding.Encode(emb)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hot: store record %s: %w", rec.ID, err)
	}
	return nil
}

// Retrieve returns a cached record, or record.ErrNotFound on a miss. Hit and
// miss counters are updated as a side effect.
func (s *Store) Retrieve(ctx context.Context, id string) (*record.Record, error) {
	if id == "" {
		return nil, record.ErrInvalidID
	}

	data, err := s.client.Get(ctx, recKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.client.Incr(ctx, missesKey)
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("hot: retrieve record %s: %w", id, err)
	}
	s.client.Incr(ctx, hitsKey)

	rec, err := s.decode(ctx, id, data)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// decode unmarshals a cached record and re-attaches its embedding and typed
// payload.
func (s *Store) decode(ctx context.Context, id string, data []byte) (*record.Record, error) {
	var stored struct {
		record.Record
		RawPayload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("hot: unmarshal record %s: %w", id, err)
	}
	rec := stored.Record
	if len(stored.RawPayload) > 0 {
		payload, err := record.DecodePayload(rec.Type, stored.RawPayload)
		if err != nil {
			return nil, fmt.Errorf("hot: record %s: %w", id, err)
		}
		rec.Payload = payload
	}

	if blob, err := s.client.HGet(ctx, embHashKey, id).Result(); err == nil {
		vec, decErr := embedding.Decode([]byte(blob))
		if decErr == nil {
			rec.Embedding = vec
		}
	}
	return &rec, nil
}

// Update replaces a cached record only when an entry is already present,
// preserving its remaining TTL. A TTL-expired entry is not resurrected.
// Returns record.ErrNotFound when no cache entry exists.
func (s *Store) Update(ctx context.Context, rec *record.Record) error {
	if rec == nil || rec.ID == "" {
		return record.ErrInvalidID
	}

	exists, err := s.client.Exists(ctx, recKeyPrefix+rec.ID).Result()
	if err != nil {
		return fmt.Errorf("hot: check record %s: %w", rec.ID, err)
	}
	if exists == 0 {
		return record.ErrNotFound
	}

	stripped := *rec
	emb := stripped.Embedding
	stripped.Embedding = nil
	data, err := json.Marshal(&stripped)
	if err != nil {
		return fmt.Errorf("hot: marshal record %s: %w", rec.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recKeyPrefix+rec.ID, data, redis.KeepTTL)
	pipe.SAdd(ctx, typeIndexPrefix+string(rec.Type), rec.ID)
	pipe.SAdd(ctx, importanceIdxPrefix+string(rec.Importance), rec.ID)
	if len(emb) > 0 {
		pipe.HSet(ctx, embHashKey, rec.ID, string(embedding.Encode(emb)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hot: update record %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a record and all its index entries. Deleting an absent
// record is a no-op, not an error: the cache may have evicted it already.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return record.ErrInvalidID
	}

	// Read the cached copy to learn which index sets reference it.
	var rec *record.Record
	if data, err := s.client.Get(ctx, recKeyPrefix+id).Bytes(); err == nil {
		rec, _ = s.decode(ctx, id, data)
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("hot: delete record %s: %w", id, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recKeyPrefix+id)
	pipe.HDel(ctx, embHashKey, id)
	if rec != nil {
		pipe.SRem(ctx, typeIndexPrefix+string(rec.Type), id)
		pipe.SRem(ctx, importanceIdxPrefix+string(rec.Importance), id)
	} else {
		// Unknown type/importance: sweep the id out of every index set.
		for _, mt := range record.AllMemoryTypes() {
			pipe.SRem(ctx, typeIndexPrefix+string(mt), id)
		}
		for _, level := range allImportance() {
			pipe.SRem(ctx, importanceIdxPrefix+string(level), id)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hot: delete record %s: %w", id, err)
	}
	return nil
}

func allImportance() []record.ImportanceLevel {
	return []record.ImportanceLevel{
		record.ImportanceCritical,
		record.ImportanceHigh,
		record.ImportanceMedium,
		record.ImportanceLow,
		record.ImportanceTransient,
	}
}

// Search performs coarse filtering over cached records. Candidate ids come
// from the type/importance set indexes when those filters are present; the
// remaining filters are applied record by record. Results are ordered by
// CreatedAt descending and truncated to limit; the second return value is
// the match count before truncation, which only covers records currently
// cached. Text search is not supported here; the storage manager routes
// text queries to the warm tier.
func (s *Store) Search(ctx context.Context, filters record.SearchFilters, limit int) ([]*record.Record, int, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.candidateIDs(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	var out []*record.Record
	for _, id := range ids {
		data, err := s.client.Get(ctx, recKeyPrefix+id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // evicted between index read and fetch
			}
			return nil, 0, fmt.Errorf("hot: search fetch %s: %w", id, err)
		}
		rec, err := s.decode(ctx, id, data)
		if err != nil {
			continue
		}
		if matchesFilters(rec, filters) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// candidateIDs narrows the id set using the set indexes where possible.
func (s *Store) candidateIDs(ctx context.Context, filters record.SearchFilters) ([]string, error) {
	if len(filters.Types) > 0 {
		var ids []string
		seen := make(map[string]struct{})
		for _, mt := range filters.Types {
			members, err := s.client.SMembers(ctx, typeIndexPrefix+string(mt)).Result()
			if err != nil {
				return nil, fmt.Errorf("hot: read type index %s: %w", mt, err)
			}
			for _, id := range members {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		return ids, nil
	}

	if len(filters.Importance) > 0 {
		var ids []string
		for _, level := range filters.Importance {
			members, err := s.client.SMembers(ctx, importanceIdxPrefix+string(level)).Result()
			if err != nil {
				return nil, fmt.Errorf("hot: read importance index %s: %w", level, err)
			}
			ids = append(ids, members...)
		}
		return ids, nil
	}

	// No indexed filter: scan all cached records.
	var ids []string
	iter := s.client.Scan(ctx, 0, recKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), recKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("hot: scan records: %w", err)
	}
	return ids, nil
}

// matchesFilters applies the non-indexed filters in Go.
func matchesFilters(rec *record.Record, filters record.SearchFilters) bool {
	if rec.IsDeleted {
		return false
	}
	if filters.OwnerAgentID != "" && rec.OwnerAgentID != filters.OwnerAgentID {
		return false
	}
	if filters.Category != "" && rec.Category != filters.Category {
		return false
	}
	if len(filters.Importance) > 0 {
		found := false
		for _, level := range filters.Importance {
			if rec.Importance == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filters.CreatedAfter != nil && rec.CreatedAt.Before(*filters.CreatedAfter) {
		return false
	}
	if filters.CreatedBefore != nil && rec.CreatedAt.After(*filters.CreatedBefore) {
		return false
	}
	for _, want := range filters.Tags {
		found := false
		for _, tag := range rec.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
