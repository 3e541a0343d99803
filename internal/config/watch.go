package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch re-reads the config file whenever it changes and invokes
// onChange with the freshly validated tree. Invalid edits are logged
// and skipped, the previous configuration stays in effect. Watch
// returns once ctx is canceled, or immediately when the config has no
// backing file.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file (rename-over-write) keep triggering.
func (c *Config) Watch(ctx context.Context, logger zerolog.Logger, onChange func(*Config)) error {
	if c.File == "" {
		return nil
	}
	log := logger.With().Str("component", "config-watch").Str("file", c.File).Logger()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(c.File)
	if err := w.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(c.File)

	// Debounce: editors fire several events per save.
	var pending *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		case <-reload:
			next, err := Load(c.File)
			if err != nil {
				log.Warn().Err(err).Msg("ignoring invalid config change")
				continue
			}
			log.Info().Msg("configuration reloaded")
			onChange(next)
		}
	}
}
