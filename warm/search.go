package warm

import (
	"context"
	"fmt"
	"strings"

	"github.com/strata-ai/strata/record"
)

// sortColumns whitelists the SearchOptions sort keys. Importance sorts by
// rank rather than alphabetically.
var sortColumns = map[string]string{
	record.SortByCreatedAt:    "created_at",
	record.SortByUpdatedAt:    "updated_at",
	record.SortByAccessCount:  "access_count",
	record.SortByLastAccessed: "last_accessed_at",
	record.SortByImportance: `CASE importance
		WHEN 'critical' THEN 5 WHEN 'high' THEN 4 WHEN 'medium' THEN 3
		WHEN 'low' THEN 2 ELSE 1 END`,
}

// Search builds a filtered, paginated query and returns both the page and
// the total match count. Soft-deleted rows and cold-tier stubs are excluded.
func (s *Store) Search(ctx context.Context, filters record.SearchFilters, opts record.SearchOptions) ([]*record.Record, int, error) {
	where, args := buildWhere(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM memories ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("warm: count search: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if opts.Descending || opts.SortBy == "" {
		direction = "DESC"
	}

	query := selectColumns + ` FROM memories ` + where +
		` ORDER BY ` + column + ` ` + direction + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("warm: search: %w", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("warm: scan search row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, rec := range out {
		if err := readSubRecord(ctx, s.db, rec); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// buildWhere translates the filters into a WHERE clause and bound args.
func buildWhere(filters record.SearchFilters) (string, []any) {
	conds := []string{"is_deleted = 0", "current_tier != 'cold'"}
	var args []any

	if len(filters.Types) > 0 {
		conds = append(conds, `type IN (`+placeholders(len(filters.Types))+`)`)
		for _, t := range filters.Types {
			args = append(args, string(t))
		}
	}
	if filters.OwnerAgentID != "" {
		conds = append(conds, `owner_agent_id = ?`)
		args = append(args, filters.OwnerAgentID)
	}
	if filters.Category != "" {
		conds = append(conds, `category = ?`)
		args = append(args, filters.Category)
	}
	if len(filters.Importance) > 0 {
		conds = append(conds, `importance IN (`+placeholders(len(filters.Importance))+`)`)
		for _, level := range filters.Importance {
			args = append(args, string(level))
		}
	}
	if filters.CreatedAfter != nil {
		conds = append(conds, `created_at >= ?`)
		args = append(args, formatTime(*filters.CreatedAfter))
	}
	if filters.CreatedBefore != nil {
		conds = append(conds, `created_at <= ?`)
		args = append(args, formatTime(*filters.CreatedBefore))
	}
	for _, tag := range filters.Tags {
		// Tags are stored as a JSON array of strings; match the quoted
		// element.
		conds = append(conds, `tags LIKE ?`)
		args = append(args, `%"`+tag+`"%`)
	}
	if filters.TextSearch != "" {
		conds = append(conds, `(title LIKE ? OR description LIKE ? OR content LIKE ?)`)
		pattern := "%" + filters.TextSearch + "%"
		args = append(args, pattern, pattern, pattern)
	}

	return `WHERE ` + strings.Join(conds, " AND "), args
}
