// Package backup implements snapshot backups of the SQLite store:
// online snapshots with checksums and sidecar metadata, verification
// by reopening, point-in-time restore, and retention sweeps. The
// scheduler in this package drives daily full backups and interval
// incrementals.
package backup

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/storage/sqlite"
	"github.com/kanbanhq/kanban/internal/telemetry"
	"github.com/kanbanhq/kanban/internal/types"
)

// ErrNoBackup is returned by Restore when no valid backup exists at or
// before the requested point in time.
var ErrNoBackup = errors.New("no valid backup for target time")

// Manager produces, verifies, restores, and prunes backups.
type Manager struct {
	store storage.Store
	dir   string
	log   zerolog.Logger

	compress       bool
	retentionDays  int
	retentionCount int
	metrics        *telemetry.Metrics

	// verification reopens snapshot files through the same driver.
	open func(ctx context.Context, path string) (storage.Store, error)

	lastDataVersion int64
	lastFullID      string
}

// Option configures a Manager.
type Option func(*Manager)

// WithCompression gzips snapshot files.
func WithCompression(on bool) Option {
	return func(m *Manager) { m.compress = on }
}

// WithRetention sets the pruning policy: backups older than days, or
// beyond the newest count, are removed (whichever rule removes more).
func WithRetention(days, count int) Option {
	return func(m *Manager) { m.retentionDays = days; m.retentionCount = count }
}

// WithMetrics wires backup counters.
func WithMetrics(mx *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// NewManager creates a manager writing backups under dir.
func NewManager(store storage.Store, dir string, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup dir: %w", err)
	}
	m := &Manager{
		store:          store,
		dir:            dir,
		log:            logger.With().Str("component", "backup").Logger(),
		retentionDays:  30,
		retentionCount: 14,
		open:           func(ctx context.Context, path string) (storage.Store, error) { return sqlite.New(ctx, path) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RunFull takes a full snapshot, records its metadata, and verifies
// it. An empty name derives one from the timestamp.
func (m *Manager) RunFull(ctx context.Context, name string) (*types.BackupMeta, error) {
	return m.run(ctx, name, types.BackupFull, "")
}

// RunIncremental compares the store's data version against the last
// backup and snapshots only when content changed. SQLite's online
// snapshot has no page-delta mode, so an incremental that fires is a
// full snapshot referencing its base; an unchanged database yields
// (nil, nil).
func (m *Manager) RunIncremental(ctx context.Context) (*types.BackupMeta, error) {
	dv, err := m.store.DataVersion(ctx)
	if err != nil {
		return nil, err
	}
	if m.lastFullID != "" && dv == m.lastDataVersion {
		m.log.Debug().Int64("data_version", dv).Msg("database unchanged, skipping incremental")
		return nil, nil
	}
	meta, err := m.run(ctx, "", types.BackupIncremental, m.lastFullID)
	if err != nil {
		return nil, err
	}
	m.lastDataVersion = dv
	return meta, nil
}

func (m *Manager) run(ctx context.Context, name string, typ types.BackupType, baseID string) (*types.BackupMeta, error) {
	health := m.store.HealthCheck(ctx)
	if !health.Connected {
		return nil, fmt.Errorf("backup: store not connected")
	}

	now := time.Now().UTC()
	if name == "" {
		name = fmt.Sprintf("%s-%s", typ, now.Format("20060102-150405"))
	}
	meta := &types.BackupMeta{
		ID:            uuid.NewString(),
		Name:          name,
		Type:          typ,
		CreatedAt:     now,
		Status:        types.BackupPending,
		RetentionDays: m.retentionDays,
		BaseBackupID:  baseID,
		Compressed:    m.compress,
	}

	tmp := filepath.Join(m.dir, name+".db.tmp")
	if err := m.store.Snapshot(ctx, tmp); err != nil {
		m.countRun(ctx, typ, false)
		return nil, fmt.Errorf("backup snapshot: %w", err)
	}
	defer os.Remove(tmp)

	final := filepath.Join(m.dir, name+".db")
	if m.compress {
		final += ".gz"
		if err := gzipFile(tmp, final); err != nil {
			m.countRun(ctx, typ, false)
			return nil, fmt.Errorf("backup compress: %w", err)
		}
	} else if err := os.Rename(tmp, final); err != nil {
		m.countRun(ctx, typ, false)
		return nil, fmt.Errorf("backup store: %w", err)
	}
	meta.Path = final

	sum, size, err := fileChecksum(final)
	if err != nil {
		m.countRun(ctx, typ, false)
		return nil, fmt.Errorf("backup checksum: %w", err)
	}
	meta.Checksum = sum
	meta.SizeBytes = size

	err = m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.RecordBackup(ctx, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("backup record: %w", err)
	}

	status := types.BackupVerified
	if verr := m.Verify(ctx, meta); verr != nil {
		m.log.Error().Err(verr).Str("backup_id", meta.ID).Msg("backup verification failed")
		status = types.BackupCorrupt
	}
	meta.Status = status
	err = m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdateBackupStatus(ctx, meta.ID, status, meta.SizeBytes, meta.Checksum)
	})
	if err != nil {
		return nil, fmt.Errorf("backup status: %w", err)
	}
	if err := m.writeSidecar(meta); err != nil {
		m.log.Warn().Err(err).Str("path", meta.Path).Msg("sidecar metadata write failed")
	}

	ok := status == types.BackupVerified
	m.countRun(ctx, typ, ok)
	if !ok {
		return meta, fmt.Errorf("backup %s failed verification", meta.ID)
	}
	if typ == types.BackupFull || baseID == "" {
		m.lastFullID = meta.ID
	}
	if dv, err := m.store.DataVersion(ctx); err == nil {
		m.lastDataVersion = dv
	}
	m.log.Info().Str("backup_id", meta.ID).Str("path", meta.Path).
		Int64("size_bytes", meta.SizeBytes).Msg("backup completed")
	return meta, nil
}

// Verify checks a backup's file hash, then reopens the snapshot and
// runs an integrity check.
func (m *Manager) Verify(ctx context.Context, meta *types.BackupMeta) error {
	sum, _, err := fileChecksum(meta.Path)
	if err != nil {
		return err
	}
	if meta.Checksum != "" && sum != meta.Checksum {
		return fmt.Errorf("checksum mismatch: file %s, recorded %s", sum, meta.Checksum)
	}

	plain, cleanup, err := m.materialize(meta)
	if err != nil {
		return err
	}
	defer cleanup()

	probe, err := m.open(ctx, plain)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer probe.Close()
	return probe.IntegrityCheck(ctx)
}

// Restore picks the newest verified backup at or before target and
// swaps it in over the live database file. The store is left in
// read-only mode; the process must reopen it (the restore CLI command
// runs against a stopped server, where reopening is implicit).
func (m *Manager) Restore(ctx context.Context, target time.Time) (*types.BackupMeta, error) {
	meta, err := m.pick(ctx, target)
	if err != nil {
		return nil, err
	}
	m.store.SetReadOnly(true)
	if err := m.Verify(ctx, meta); err != nil {
		m.store.SetReadOnly(false)
		return nil, fmt.Errorf("restore verify: %w", err)
	}
	if err := m.RestoreInto(ctx, meta, m.store.Path()); err != nil {
		m.store.SetReadOnly(false)
		return nil, err
	}
	m.log.Info().Str("backup_id", meta.ID).Time("target", target).Msg("restore completed")
	return meta, nil
}

// RestoreInto materializes a backup at destPath with an atomic rename.
// The previous file, if any, is kept beside it with a .pre-restore
// suffix.
func (m *Manager) RestoreInto(ctx context.Context, meta *types.BackupMeta, destPath string) error {
	plain, cleanup, err := m.materialize(meta)
	if err != nil {
		return err
	}
	defer cleanup()

	staging := destPath + ".restore"
	if err := copyFile(plain, staging); err != nil {
		return fmt.Errorf("restore stage: %w", err)
	}
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Rename(destPath, destPath+".pre-restore"); err != nil {
			return fmt.Errorf("restore backup of live file: %w", err)
		}
	}
	// Stale WAL/SHM files must not shadow the restored database.
	os.Remove(destPath + "-wal")
	os.Remove(destPath + "-shm")
	if err := os.Rename(staging, destPath); err != nil {
		return fmt.Errorf("restore swap: %w", err)
	}
	return nil
}

// pick returns the newest verified backup created at or before target.
func (m *Manager) pick(ctx context.Context, target time.Time) (*types.BackupMeta, error) {
	backups, err := m.store.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range backups { // newest first
		if b.Status != types.BackupVerified {
			continue
		}
		if b.CreatedAt.After(target) {
			continue
		}
		return b, nil
	}
	return nil, ErrNoBackup
}

// ApplyRetention prunes old backups. Two candidate sets are computed,
// by age and by count; the larger one is removed.
func (m *Manager) ApplyRetention(ctx context.Context) (int, error) {
	backups, err := m.store.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].CreatedAt.After(backups[j].CreatedAt) })

	var byAge []*types.BackupMeta
	if m.retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -m.retentionDays)
		for _, b := range backups {
			if b.CreatedAt.Before(cutoff) {
				byAge = append(byAge, b)
			}
		}
	}
	var byCount []*types.BackupMeta
	if m.retentionCount > 0 && len(backups) > m.retentionCount {
		byCount = backups[m.retentionCount:]
	}

	victims := byAge
	if len(byCount) > len(byAge) {
		victims = byCount
	}
	for _, b := range victims {
		if err := m.remove(ctx, b); err != nil {
			return 0, err
		}
	}
	if len(victims) > 0 {
		m.log.Info().Int("removed", len(victims)).Msg("retention sweep")
	}
	return len(victims), nil
}

// Delete removes a recorded backup and its files by name.
func (m *Manager) Delete(ctx context.Context, name string) error {
	meta, err := m.store.GetBackupByName(ctx, name)
	if err != nil {
		return err
	}
	return m.remove(ctx, meta)
}

func (m *Manager) remove(ctx context.Context, meta *types.BackupMeta) error {
	err := m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.DeleteBackup(ctx, meta.ID)
	})
	if err != nil {
		return err
	}
	os.Remove(meta.Path)
	os.Remove(meta.Path + ".meta.json")
	return nil
}

// materialize returns a plain database file for the backup,
// decompressing to a temp file when needed. cleanup removes any temp.
func (m *Manager) materialize(meta *types.BackupMeta) (string, func(), error) {
	if !meta.Compressed {
		return meta.Path, func() {}, nil
	}
	tmp, err := os.CreateTemp(m.dir, "verify-*.db")
	if err != nil {
		return "", nil, err
	}
	tmp.Close()
	if err := gunzipFile(meta.Path, tmp.Name()); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}

func (m *Manager) writeSidecar(meta *types.BackupMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(meta.Path+".meta.json", data, 0o644)
}

func (m *Manager) countRun(ctx context.Context, typ types.BackupType, ok bool) {
	if m.metrics != nil {
		m.metrics.BackupRun(ctx, string(typ), ok)
	}
}

func fileChecksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func gunzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
