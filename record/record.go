package record

import (
	"fmt"
	"sort"
	"time"
)

// MemoryType classifies what kind of knowledge a record holds. The type
// determines which payload variant accompanies the record and which
// consolidation thresholds apply to it.
type MemoryType string

const (
	// TypeWorking is short-lived task context for an in-progress activity.
	TypeWorking MemoryType = "working"

	// TypeEpisodic records a concrete experience: something that happened,
	// when, and with what outcome.
	TypeEpisodic MemoryType = "episodic"

	// TypeSemantic is learned factual knowledge, independent of any single
	// experience.
	TypeSemantic MemoryType = "semantic"

	// TypeProcedural captures how to perform a task as an ordered list of
	// steps with success statistics.
	TypeProcedural MemoryType = "procedural"

	// TypeShared is knowledge published by one agent for use by others.
	TypeShared MemoryType = "shared"

	// TypeBusiness holds business metrics: KPIs, trends, and targets.
	TypeBusiness MemoryType = "business"
)

// AllMemoryTypes lists every valid memory type, in a stable order.
func AllMemoryTypes() []MemoryType {
	return []MemoryType{
		TypeWorking,
		TypeEpisodic,
		TypeSemantic,
		TypeProcedural,
		TypeShared,
		TypeBusiness,
	}
}

// Validate returns an error if the memory type is not one of the six known
// values.
func (t MemoryType) Validate() error {
	switch t {
	case TypeWorking, TypeEpisodic, TypeSemantic, TypeProcedural, TypeShared, TypeBusiness:
		return nil
	}
	return fmt.Errorf("record: invalid memory type %q", string(t))
}

// ImportanceLevel is the five-point retention scale. Critical records are
// never deleted by migration or consolidation; transient records are the
// first candidates for demotion.
type ImportanceLevel string

const (
	// ImportanceCritical records are never deleted by background processes.
	// They may still move between tiers.
	ImportanceCritical ImportanceLevel = "critical"

	// ImportanceHigh records resist downward migration.
	ImportanceHigh ImportanceLevel = "high"

	// ImportanceMedium is the default importance.
	ImportanceMedium ImportanceLevel = "medium"

	// ImportanceLow records migrate downward readily.
	ImportanceLow ImportanceLevel = "low"

	// ImportanceTransient records are demoted out of the hot tier after 24
	// hours without access.
	ImportanceTransient ImportanceLevel = "transient"
)

// Validate returns an error if the importance level is unknown.
func (l ImportanceLevel) Validate() error {
	switch l {
	case ImportanceCritical, ImportanceHigh, ImportanceMedium, ImportanceLow, ImportanceTransient:
		return nil
	}
	return fmt.Errorf("record: invalid importance level %q", string(l))
}

// Weight returns the migration weight for the importance level. Higher
// weights pull the migration priority toward zero, keeping the record in its
// current tier.
func (l ImportanceLevel) Weight() float64 {
	switch l {
	case ImportanceCritical:
		return 0.95
	case ImportanceHigh:
		return 0.75
	case ImportanceMedium:
		return 0.5
	case ImportanceLow:
		return 0.25
	case ImportanceTransient:
		return 0.05
	default:
		return 0.5
	}
}

// Tier identifies one of the three storage backends.
type Tier string

const (
	// TierHot is the TTL-bounded cache tier.
	TierHot Tier = "hot"

	// TierWarm is the authoritative relational tier.
	TierWarm Tier = "warm"

	// TierCold is the compressed archival tier.
	TierCold Tier = "cold"
)

// Validate returns an error if the tier is unknown.
func (t Tier) Validate() error {
	switch t {
	case TierHot, TierWarm, TierCold:
		return nil
	}
	return fmt.Errorf("record: invalid tier %q", string(t))
}

// AccessPattern is a coarse classification of how often a record is read,
// derived from its access count. It drives migration priority.
type AccessPattern string

const (
	// AccessFrequent records are read often and resist downward migration.
	AccessFrequent AccessPattern = "frequent"

	// AccessRegular records see steady but unremarkable reads.
	AccessRegular AccessPattern = "regular"

	// AccessOccasional records are read rarely.
	AccessOccasional AccessPattern = "occasional"

	// AccessRare records are effectively dormant and are the primary
	// candidates for cold archival.
	AccessRare AccessPattern = "rare"
)

// Weight returns the migration weight for the access pattern. Frequently
// accessed records weigh toward not migrating down.
func (p AccessPattern) Weight() float64 {
	switch p {
	case AccessFrequent:
		return 0.9
	case AccessRegular:
		return 0.6
	case AccessOccasional:
		return 0.3
	case AccessRare:
		return 0.1
	default:
		return 0.3
	}
}

// ClassifyAccess maps an access count onto an access pattern.
func ClassifyAccess(accessCount int64) AccessPattern {
	switch {
	case accessCount >= 50:
		return AccessFrequent
	case accessCount >= 10:
		return AccessRegular
	case accessCount >= 3:
		return AccessOccasional
	default:
		return AccessRare
	}
}

// Record is a single memory belonging to an agent.
//
// The zero value is not usable; records are built by the storage manager from
// a validated CreateInput. ID is immutable once assigned. Version increases
// by exactly one per successful update and never decreases.
type Record struct {
	// ID is the opaque stable identifier, immutable once created.
	ID string `json:"id"`

	// Type selects the payload variant and consolidation behavior.
	Type MemoryType `json:"type"`

	// Category, Title, and Description are free-text classification and
	// display fields. Title participates in embedding generation.
	Category    string `json:"category,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Content is the opaque structured payload body. Its schema depends on
	// Type; Content participates in embedding generation.
	Content map[string]any `json:"content,omitempty"`

	// Metadata is a key/value bag for provenance and tier bookkeeping, such
	// as the cold-tier archive key after a warm-to-cold migration.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Tags is a set of labels; insertion order is irrelevant.
	Tags []string `json:"tags,omitempty"`

	// OwnerAgentID is the agent that created the record. Access scoping is
	// enforced by the sharing layer, not by this engine.
	OwnerAgentID string `json:"owner_agent_id"`

	// Importance governs retention and migration eligibility.
	Importance ImportanceLevel `json:"importance"`

	// CurrentTier is the record's placement. The warm tier is always
	// authoritative for hot and warm placements; hot means a cache copy
	// is expected live, cold means the content lives in the archive and
	// the warm row is a stub pointing at it.
	CurrentTier Tier `json:"current_tier"`

	// Embedding is the fixed-length vector generated from Title plus
	// Content. Its length is constant across the whole system.
	Embedding []float32 `json:"embedding,omitempty"`

	// Payload is the type-specific sub-record for Type.
	Payload Payload `json:"payload,omitempty"`

	// AccessCount and LastAccessedAt are updated on every read. Both are
	// monotonically non-decreasing.
	AccessCount    int64     `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Version increases by exactly one per successful update. It provides
	// optimistic conflict awareness, not enforced locking.
	Version int `json:"version"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	IsDeleted bool       `json:"is_deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ArchiveKeyMetadata is the metadata key recording the cold-tier object key
// after a warm-to-cold migration. The warm row is kept as a lightweight stub
// pointing at this key.
const ArchiveKeyMetadata = "archive_key"

// ArchiveKey returns the cold-tier object key recorded in the record's
// metadata, or "" if the record has never been archived.
func (r *Record) ArchiveKey() string {
	if r.Metadata == nil {
		return ""
	}
	key, _ := r.Metadata[ArchiveKeyMetadata].(string)
	return key
}

// SetArchiveKey records the cold-tier object key in the record's metadata.
// An empty key removes the entry.
func (r *Record) SetArchiveKey(key string) {
	if key == "" {
		if r.Metadata != nil {
			delete(r.Metadata, ArchiveKeyMetadata)
		}
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[ArchiveKeyMetadata] = key
}

// Age returns how old the record is relative to now, in whole days.
func (r *Record) Age(now time.Time) int {
	if r.CreatedAt.IsZero() || now.Before(r.CreatedAt) {
		return 0
	}
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// EmbeddingText returns the text the record's embedding is generated from:
// the title followed by the flattened content values.
func (r *Record) EmbeddingText() string {
	return EmbeddingText(r.Title, r.Content)
}

// EmbeddingText builds the canonical embedding input for a title and content
// body. Content keys are not included; only their string values, appended in
// key order so equal content produces equal text.
func EmbeddingText(title string, content map[string]any) string {
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := title
	for _, k := range keys {
		if s, ok := content[k].(string); ok && s != "" {
			text += " " + s
		}
	}
	return text
}

// Clone returns a deep-enough copy of the record for cache population and
// migration: maps and slices are copied, payloads are shared (payloads are
// treated as immutable once attached).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Content != nil {
		out.Content = make(map[string]any, len(r.Content))
		for k, v := range r.Content {
			out.Content[k] = v
		}
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}
