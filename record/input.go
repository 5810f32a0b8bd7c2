package record

import (
	"time"
)

// CreateInput is the caller-supplied data for a new record. The storage
// manager validates the input, generates the id and embedding, and writes the
// authoritative copy to the warm tier.
type CreateInput struct {
	Type         MemoryType      `json:"type"`
	Category     string          `json:"category,omitempty"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Content      map[string]any  `json:"content,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	OwnerAgentID string          `json:"owner_agent_id"`
	Importance   ImportanceLevel `json:"importance,omitempty"`
	Payload      Payload         `json:"payload,omitempty"`
}

// Validate rejects malformed input before any storage I/O. Importance
// defaults to medium when empty; a payload, when present, must match Type.
func (in *CreateInput) Validate() error {
	if err := in.Type.Validate(); err != nil {
		return NewValidationError("type", err.Error())
	}
	if in.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if in.OwnerAgentID == "" {
		return NewValidationError("owner_agent_id", "must not be empty")
	}
	if in.Importance != "" {
		if err := in.Importance.Validate(); err != nil {
			return NewValidationError("importance", err.Error())
		}
	}
	if in.Payload != nil && in.Payload.MemoryType() != in.Type {
		return NewValidationError("payload", "variant does not match memory type")
	}
	return nil
}

// UpdatePatch carries a partial update. Nil fields are left unchanged. A
// change to Title or Content regenerates the record's embedding.
type UpdatePatch struct {
	Category    *string          `json:"category,omitempty"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Content     map[string]any   `json:"content,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Tags        *[]string        `json:"tags,omitempty"`
	Importance  *ImportanceLevel `json:"importance,omitempty"`
	Payload     Payload          `json:"payload,omitempty"`
}

// Validate rejects malformed patch values.
func (p *UpdatePatch) Validate() error {
	if p.Title != nil && *p.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if p.Importance != nil {
		if err := p.Importance.Validate(); err != nil {
			return NewValidationError("importance", err.Error())
		}
	}
	return nil
}

// TouchesEmbedding reports whether applying the patch requires regenerating
// the embedding.
func (p *UpdatePatch) TouchesEmbedding() bool {
	return p.Title != nil || p.Content != nil
}

// SearchFilters restricts a structured search. Zero-valued fields do not
// filter.
type SearchFilters struct {
	// Types restricts results to the given memory types.
	Types []MemoryType `json:"types,omitempty"`

	// OwnerAgentID restricts results to one agent's records.
	OwnerAgentID string `json:"owner_agent_id,omitempty"`

	// Category restricts results to an exact category.
	Category string `json:"category,omitempty"`

	// Tags requires every listed tag to be present.
	Tags []string `json:"tags,omitempty"`

	// Importance restricts results to the given levels.
	Importance []ImportanceLevel `json:"importance,omitempty"`

	// CreatedAfter and CreatedBefore bound the creation time.
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`

	// TextSearch matches a substring of title, description, or content.
	TextSearch string `json:"text_search,omitempty"`
}

// Validate rejects malformed filter values.
func (f *SearchFilters) Validate() error {
	for _, t := range f.Types {
		if err := t.Validate(); err != nil {
			return NewValidationError("types", err.Error())
		}
	}
	for _, l := range f.Importance {
		if err := l.Validate(); err != nil {
			return NewValidationError("importance", err.Error())
		}
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedBefore.Before(*f.CreatedAfter) {
		return NewValidationError("created_before", "must not precede created_after")
	}
	return nil
}

// Sort keys accepted by SearchOptions.
const (
	SortByCreatedAt    = "created_at"
	SortByUpdatedAt    = "updated_at"
	SortByAccessCount  = "access_count"
	SortByLastAccessed = "last_accessed_at"
	SortByImportance   = "importance"
)

// SearchOptions controls pagination and ordering of a structured search.
type SearchOptions struct {
	// Limit caps the page size; 0 means the store default.
	Limit int `json:"limit,omitempty"`

	// Offset skips leading results for pagination.
	Offset int `json:"offset,omitempty"`

	// SortBy is one of the SortBy* keys; empty means created_at.
	SortBy string `json:"sort_by,omitempty"`

	// Descending orders newest/highest first when true.
	Descending bool `json:"descending,omitempty"`
}

// SearchResult is one page of a structured search.
type SearchResult struct {
	// Records is the result page.
	Records []*Record `json:"records"`

	// Total is the number of matches across all pages.
	Total int `json:"total"`

	// TierUsed reports which tier actually served the search, which may
	// differ from the preferred tier after a failover.
	TierUsed Tier `json:"tier_used"`
}

// SimilarityAlgorithm selects the distance formula for vector search.
type SimilarityAlgorithm string

const (
	// SimilarityCosine ranks by cosine similarity, in [-1, 1].
	SimilarityCosine SimilarityAlgorithm = "cosine"

	// SimilarityEuclidean ranks by inverted Euclidean distance, in (0, 1].
	SimilarityEuclidean SimilarityAlgorithm = "euclidean"

	// SimilarityDotProduct ranks by raw dot product.
	SimilarityDotProduct SimilarityAlgorithm = "dot_product"
)

// Validate returns an error if the algorithm is unknown.
func (a SimilarityAlgorithm) Validate() error {
	switch a {
	case SimilarityCosine, SimilarityEuclidean, SimilarityDotProduct:
		return nil
	}
	return NewValidationError("algorithm", "must be cosine, euclidean, or dot_product")
}

// VectorSearchConfig controls a similarity search.
type VectorSearchConfig struct {
	// Algorithm selects the similarity formula; empty means cosine.
	Algorithm SimilarityAlgorithm `json:"algorithm,omitempty"`

	// Threshold drops matches whose similarity falls below it.
	Threshold float64 `json:"threshold,omitempty"`

	// MaxResults caps the merged result count; 0 means the store default.
	MaxResults int `json:"max_results,omitempty"`
}

// VectorMatch is one ranked similarity-search result.
type VectorMatch struct {
	// Record is the matched record.
	Record *Record `json:"record"`

	// Similarity is the score under the requested algorithm.
	Similarity float64 `json:"similarity"`

	// Tier is the tier that produced the match.
	Tier Tier `json:"tier"`
}

// TierStats describes one tier's current contents.
type TierStats struct {
	// Records is the number of records the tier currently holds.
	Records int64 `json:"records"`

	// SizeBytes is the tier's estimated storage footprint.
	SizeBytes int64 `json:"size_bytes"`

	// ByType and ByImportance break the record count down.
	ByType       map[MemoryType]int64      `json:"by_type,omitempty"`
	ByImportance map[ImportanceLevel]int64 `json:"by_importance,omitempty"`

	// HitRate is the cache hit fraction; meaningful for the hot tier only.
	HitRate float64 `json:"hit_rate,omitempty"`
}

// StorageStats aggregates per-tier statistics.
type StorageStats struct {
	// Tiers maps each tier to its stats. A tier whose backend failed is
	// absent from the map.
	Tiers map[Tier]TierStats `json:"tiers"`

	// TotalRecords sums record counts across tiers.
	TotalRecords int64 `json:"total_records"`

	// Distribution is each tier's fraction of the total record count.
	Distribution map[Tier]float64 `json:"distribution,omitempty"`
}
