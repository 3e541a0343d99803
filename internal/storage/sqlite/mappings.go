package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kanbanhq/kanban/internal/types"
)

const mappingCols = "id, pattern, pattern_type, board_id, priority, default_tags"

func scanMapping(row rowScanner) (*types.RepoMapping, error) {
	var (
		m    types.RepoMapping
		tags string
	)
	if err := row.Scan(&m.ID, &m.Pattern, &m.PatternType, &m.BoardID,
		&m.Priority, &tags); err != nil {
		return nil, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &m.DefaultTags); err != nil {
			return nil, fmt.Errorf("decode default tags: %w", err)
		}
	}
	return &m, nil
}

// CreateMapping inserts a repository-to-board routing rule. Default
// tags are stored as a JSON array.
func (q queries) CreateMapping(ctx context.Context, m *types.RepoMapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(m.DefaultTags)
	if err != nil {
		return fmt.Errorf("encode default tags: %w", err)
	}
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO repo_mappings (pattern, pattern_type, board_id, priority, default_tags)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Pattern, m.PatternType, m.BoardID, m.Priority, string(tags))
	if err != nil {
		return wrapDBError("insert mapping", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert mapping id", err)
	}
	m.ID = id
	return nil
}

// ListMappings returns every routing rule, highest priority first, so
// the first match during resolution wins.
func (q queries) ListMappings(ctx context.Context) ([]*types.RepoMapping, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+mappingCols+` FROM repo_mappings ORDER BY priority DESC, id`)
	if err != nil {
		return nil, wrapDBError("list mappings", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []*types.RepoMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, wrapDBError("scan mapping", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// DeleteMapping removes a routing rule.
func (q queries) DeleteMapping(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM repo_mappings WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete mapping", err)
	}
	return requireRowAffected(res, "delete mapping")
}
