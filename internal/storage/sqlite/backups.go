package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

const backupCols = "id, name, type, created_at, size_bytes, checksum, status, " +
	"retention_days, path, base_backup_id, compressed"

func scanBackup(row rowScanner) (*types.BackupMeta, error) {
	var b types.BackupMeta
	if err := row.Scan(&b.ID, &b.Name, &b.Type, &b.CreatedAt, &b.SizeBytes,
		&b.Checksum, &b.Status, &b.RetentionDays, &b.Path, &b.BaseBackupID,
		&b.Compressed); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func collectBackups(rows *sql.Rows) ([]*types.BackupMeta, error) {
	defer func() { _ = rows.Close() }()
	var backups []*types.BackupMeta
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, wrapDBError("scan backup", err)
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

// RecordBackup persists the metadata row for a completed or pending
// snapshot file. The ID is caller-assigned.
func (q queries) RecordBackup(ctx context.Context, b *types.BackupMeta) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = types.BackupPending
	}
	_, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO backups (id, name, type, created_at, size_bytes, checksum,
			status, retention_days, path, base_backup_id, compressed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Type, b.CreatedAt, b.SizeBytes, b.Checksum,
		b.Status, b.RetentionDays, b.Path, b.BaseBackupID, b.Compressed)
	return wrapDBError("insert backup", err)
}

// GetBackup fetches backup metadata by ID.
func (q queries) GetBackup(ctx context.Context, id string) (*types.BackupMeta, error) {
	b, err := scanBackup(q.dbtx.QueryRowContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get backup", err)
	}
	return b, nil
}

// GetBackupByName fetches the newest backup with the given name.
func (q queries) GetBackupByName(ctx context.Context, name string) (*types.BackupMeta, error) {
	b, err := scanBackup(q.dbtx.QueryRowContext(ctx,
		`SELECT `+backupCols+` FROM backups WHERE name = ?
		 ORDER BY created_at DESC LIMIT 1`, name))
	if err != nil {
		return nil, wrapDBError("get backup by name", err)
	}
	return b, nil
}

// ListBackups returns backup metadata, newest first.
func (q queries) ListBackups(ctx context.Context) ([]*types.BackupMeta, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+backupCols+` FROM backups ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, wrapDBError("list backups", err)
	}
	return collectBackups(rows)
}

// UpdateBackupStatus records the outcome of verification along with
// the measured size and checksum.
func (q queries) UpdateBackupStatus(ctx context.Context, id string, status types.BackupStatus, sizeBytes int64, checksum string) error {
	res, err := q.dbtx.ExecContext(ctx,
		`UPDATE backups SET status = ?, size_bytes = ?, checksum = ? WHERE id = ?`,
		status, sizeBytes, checksum, id)
	if err != nil {
		return wrapDBError("update backup status", err)
	}
	return requireRowAffected(res, "update backup status")
}

// DeleteBackup removes a metadata row. The snapshot file on disk is
// the backup manager's job.
func (q queries) DeleteBackup(ctx context.Context, id string) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete backup", err)
	}
	return requireRowAffected(res, "delete backup")
}
