package service

import (
	"context"
	"time"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/types"
)

// TriggerBackup runs an on-demand snapshot through the backup engine.
// Emits backup:started, then backup:completed or backup:failed.
func (s *Service) TriggerBackup(ctx context.Context, name string) (*types.BackupMeta, error) {
	if s.backups == nil {
		return nil, Validationf("backups are not configured")
	}
	s.hub.Publish(eventbus.Event{
		Type: eventbus.BackupStarted, BoardID: eventbus.AllBoards,
		Payload: map[string]any{"name": name},
	})
	meta, err := s.backups.RunFull(ctx, name)
	if err != nil {
		s.hub.Publish(eventbus.Event{
			Type: eventbus.BackupFailed, BoardID: eventbus.AllBoards,
			Payload: map[string]any{"name": name, "error": err.Error()},
		})
		s.log.Error().Err(err).Str("name", name).Msg("backup failed")
		return nil, wrapStorage(err, "backup")
	}
	s.hub.Publish(eventbus.Event{
		Type: eventbus.BackupCompleted, BoardID: eventbus.AllBoards,
		Payload: map[string]any{
			"backup_id": meta.ID, "size_bytes": meta.SizeBytes, "checksum": meta.Checksum,
		},
	})
	return meta, nil
}

// RestoreBackup restores the newest valid backup at or before target.
func (s *Service) RestoreBackup(ctx context.Context, target time.Time) (*types.BackupMeta, error) {
	if s.backups == nil {
		return nil, Validationf("backups are not configured")
	}
	meta, err := s.backups.Restore(ctx, target)
	if err != nil {
		return nil, wrapStorage(err, "backup")
	}
	return meta, nil
}

// DeleteBackup removes a recorded backup and its files by name.
func (s *Service) DeleteBackup(ctx context.Context, name string) error {
	if s.backups == nil {
		return Validationf("backups are not configured")
	}
	if err := s.backups.Delete(ctx, name); err != nil {
		return wrapStorage(err, "backup")
	}
	return nil
}

// ListBackups returns recorded backups, newest first.
func (s *Service) ListBackups(ctx context.Context) ([]*types.BackupMeta, error) {
	out, err := s.store.ListBackups(ctx)
	if err != nil {
		return nil, wrapStorage(err, "backup")
	}
	return out, nil
}
