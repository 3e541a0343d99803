package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler drives the manager: a full backup at a fixed wall-clock
// time each day, incrementals on an interval, and a retention sweep
// after each full run.
type Scheduler struct {
	manager *Manager
	log     zerolog.Logger

	fullHour    int
	fullMinute  int
	incremental time.Duration

	// tick is the poll interval, shortened in tests.
	tick time.Duration
}

// NewScheduler builds a scheduler. schedule is "HH:MM" in local time
// (default 02:00); incremental <= 0 disables interval backups.
func NewScheduler(m *Manager, schedule string, incremental time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	h, min, err := parseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		manager:     m,
		log:         logger.With().Str("component", "backup-scheduler").Logger(),
		fullHour:    h,
		fullMinute:  min,
		incremental: incremental,
		tick:        time.Minute,
	}, nil
}

// Run blocks until ctx is canceled, firing backups on schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var lastFull time.Time
	var lastIncremental time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if s.fullDue(now, lastFull) {
				if _, err := s.manager.RunFull(ctx, ""); err != nil {
					s.log.Error().Err(err).Msg("scheduled full backup failed")
				} else {
					lastFull = now
					if _, err := s.manager.ApplyRetention(ctx); err != nil {
						s.log.Error().Err(err).Msg("retention sweep failed")
					}
				}
				continue
			}
			if s.incremental > 0 && now.Sub(lastIncremental) >= s.incremental {
				lastIncremental = now
				if _, err := s.manager.RunIncremental(ctx); err != nil {
					s.log.Error().Err(err).Msg("incremental backup failed")
				}
			}
		}
	}
}

// fullDue reports whether the daily slot has been reached and no full
// backup ran today.
func (s *Scheduler) fullDue(now, lastFull time.Time) bool {
	slot := time.Date(now.Year(), now.Month(), now.Day(), s.fullHour, s.fullMinute, 0, 0, now.Location())
	if now.Before(slot) {
		return false
	}
	return lastFull.Before(slot)
}

func parseSchedule(s string) (hour, minute int, err error) {
	if s == "" {
		return 2, 0, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("backup schedule must be HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("backup schedule hour out of range: %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("backup schedule minute out of range: %q", s)
	}
	return hour, minute, nil
}
