package warm

import (
	"context"
	"database/sql/driver"
	"fmt"

	sqlite "modernc.org/sqlite"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
)

// Similarity runs natively in SQL through deterministic scalar functions so
// the database can threshold and rank without round-tripping every row.
func init() {
	register := func(name string, sim func(a, b []float32) (float64, error)) {
		sqlite.MustRegisterDeterministicScalarFunction(name, 2,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				a, err := blobVector(args[0])
				if err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
				b, err := blobVector(args[1])
				if err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
				if a == nil || b == nil {
					return nil, nil
				}
				return sim(a, b)
			})
	}
	register("vec_sim_cosine", embedding.Cosine)
	register("vec_sim_euclidean", embedding.Euclidean)
	register("vec_sim_dot", embedding.Dot)
}

// blobVector converts a driver value holding the embedding wire format into
// a float32 slice. NULL passes through as nil.
func blobVector(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return embedding.Decode(x)
	case string:
		return embedding.Decode([]byte(x))
	default:
		return nil, fmt.Errorf("unsupported vector type %T", v)
	}
}

// similarityFunctions maps each algorithm to its SQL function.
var similarityFunctions = map[record.SimilarityAlgorithm]string{
	record.SimilarityCosine:     "vec_sim_cosine",
	record.SimilarityEuclidean:  "vec_sim_euclidean",
	record.SimilarityDotProduct: "vec_sim_dot",
}

// VectorSearch ranks records by similarity to the query embedding using the
// configured algorithm, drops matches below the threshold, and caps the
// result at MaxResults. Soft-deleted rows and cold-tier stubs are excluded.
func (s *Store) VectorSearch(ctx context.Context, query []float32, cfg record.VectorSearchConfig, types []record.MemoryType) ([]record.VectorMatch, error) {
	if len(query) == 0 {
		return nil, record.NewValidationError("query", "embedding must not be empty")
	}

	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = record.SimilarityCosine
	}
	fn, ok := similarityFunctions[algorithm]
	if !ok {
		return nil, algorithm.Validate()
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	queryBlob := embedding.Encode(query)
	sqlQuery := selectColumns + `, ` + fn + `(embedding, ?) AS similarity
		FROM memories
		WHERE is_deleted = 0 AND current_tier != 'cold' AND embedding IS NOT NULL
		  AND ` + fn + `(embedding, ?) >= ?`
	args := []any{queryBlob, queryBlob, cfg.Threshold}

	if len(types) > 0 {
		sqlQuery += ` AND type IN (` + placeholders(len(types)) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	sqlQuery += ` ORDER BY similarity DESC LIMIT ?`
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("warm: vector search: %w", err)
	}
	defer rows.Close()

	var matches []record.VectorMatch
	for rows.Next() {
		rec, sim, err := scanRecordWithSimilarity(rows)
		if err != nil {
			return nil, fmt.Errorf("warm: scan vector row: %w", err)
		}
		matches = append(matches, record.VectorMatch{Record: rec, Similarity: sim, Tier: record.TierWarm})
	}
	return matches, rows.Err()
}
