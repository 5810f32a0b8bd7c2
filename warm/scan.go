package warm

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/strata-ai/strata/embedding"
	"github.com/strata-ai/strata/record"
)

const selectColumns = `SELECT id, type, category, title, description, content, metadata, tags,
	owner_agent_id, importance, current_tier, embedding,
	access_count, last_accessed_at, version, created_at, updated_at, is_deleted, deleted_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one memories row into a Record. The sub-record payload is
// attached separately by readSubRecord.
func scanRecord(row rowScanner) (*record.Record, error) {
	return scanRecordExtra(row)
}

// scanRecordWithSimilarity reads a memories row carrying a trailing
// similarity column, as produced by VectorSearch.
func scanRecordWithSimilarity(row rowScanner) (*record.Record, float64, error) {
	var sim float64
	rec, err := scanRecordExtra(row, &sim)
	return rec, sim, err
}

func scanRecordExtra(row rowScanner, extra ...any) (*record.Record, error) {
	var (
		rec             record.Record
		typ, importance string
		tier            string
		category        sql.NullString
		description     sql.NullString
		contentJSON     sql.NullString
		metadataJSON    sql.NullString
		tagsJSON        sql.NullString
		embBlob         []byte
		lastAccessedAt  sql.NullString
		createdAt       string
		updatedAt       string
		isDeleted       int
		deletedAt       sql.NullString
	)

	dests := []any{
		&rec.ID, &typ, &category, &rec.Title, &description,
		&contentJSON, &metadataJSON, &tagsJSON,
		&rec.OwnerAgentID, &importance, &tier, &embBlob,
		&rec.AccessCount, &lastAccessedAt, &rec.Version,
		&createdAt, &updatedAt, &isDeleted, &deletedAt,
	}
	dests = append(dests, extra...)
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}

	rec.Type = record.MemoryType(typ)
	rec.Importance = record.ImportanceLevel(importance)
	rec.CurrentTier = record.Tier(tier)
	rec.Category = category.String
	rec.Description = description.String
	rec.IsDeleted = isDeleted != 0
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	if lastAccessedAt.Valid {
		rec.LastAccessedAt = parseTime(lastAccessedAt.String)
	}
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		rec.DeletedAt = &t
	}

	if contentJSON.Valid && contentJSON.String != "" {
		_ = json.Unmarshal([]byte(contentJSON.String), &rec.Content)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &rec.Tags)
	}
	if len(embBlob) > 0 {
		if vec, err := embedding.Decode(embBlob); err == nil {
			rec.Embedding = vec
		}
	}
	return &rec, nil
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
