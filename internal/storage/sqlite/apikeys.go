package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

const apiKeyCols = "id, key_hash, name, created_at, last_used_at, expires_at"

func scanAPIKey(row rowScanner) (*types.APIKey, error) {
	var (
		k        types.APIKey
		lastUsed sql.NullTime
		expires  sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.CreatedAt,
		&lastUsed, &expires); err != nil {
		return nil, err
	}
	k.CreatedAt = k.CreatedAt.UTC()
	k.LastUsedAt = timePtr(lastUsed)
	k.ExpiresAt = timePtr(expires)
	return &k, nil
}

// CreateAPIKey stores a credential record. Only the HMAC of the raw
// key is persisted.
func (q queries) CreateAPIKey(ctx context.Context, k *types.APIKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, created_at, last_used_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		k.KeyHash, k.Name, k.CreatedAt, nullTime(k.LastUsedAt), nullTime(k.ExpiresAt))
	if err != nil {
		return wrapDBError("insert api key", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert api key id", err)
	}
	k.ID = id
	return nil
}

// GetAPIKeyByHash looks up a credential by its stored hash.
func (q queries) GetAPIKeyByHash(ctx context.Context, hash string) (*types.APIKey, error) {
	k, err := scanAPIKey(q.dbtx.QueryRowContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys WHERE key_hash = ?`, hash))
	if err != nil {
		return nil, wrapDBError("get api key", err)
	}
	return k, nil
}

// ListAPIKeys returns every credential record, oldest first.
func (q queries) ListAPIKeys(ctx context.Context) ([]*types.APIKey, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+apiKeyCols+` FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("list api keys", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*types.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, wrapDBError("scan api key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TouchAPIKey records a successful use of the key.
func (q queries) TouchAPIKey(ctx context.Context, id int64, at time.Time) error {
	res, err := q.dbtx.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return wrapDBError("touch api key", err)
	}
	return requireRowAffected(res, "touch api key")
}

// DeleteAPIKey revokes a credential.
func (q queries) DeleteAPIKey(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete api key", err)
	}
	return requireRowAffected(res, "delete api key")
}
