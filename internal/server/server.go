// Package server wires the process together: storage, service, event
// hub, HTTP API, WebSocket gateway, backup scheduler, and the periodic
// priority recalc, all under one errgroup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kanbanhq/kanban/internal/api"
	"github.com/kanbanhq/kanban/internal/backup"
	"github.com/kanbanhq/kanban/internal/config"
	"github.com/kanbanhq/kanban/internal/engine"
	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/log"
	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/storage/sqlite"
	"github.com/kanbanhq/kanban/internal/telemetry"
	"github.com/kanbanhq/kanban/internal/ws"
)

func toEngineWeights(w config.Weights) engine.Weights {
	return engine.Weights{
		Age:        w.Age,
		Dependency: w.Dependency,
		Deadline:   w.Deadline,
		Manual:     w.Manual,
		Context:    w.Context,
	}
}

// Run starts the server and blocks until ctx is canceled or a
// subsystem fails. A nil return means a clean shutdown.
func Run(ctx context.Context, cfg *config.Config, version string) error {
	logger := log.Logger

	if err := telemetry.Init(ctx, "kanband", version); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	hub := eventbus.New(0)
	defer hub.Close()

	// Weights live behind an atomic pointer so a config reload swaps
	// them without restarting; the service reads them per recompute.
	var weights atomic.Pointer[engine.Weights]
	w := toEngineWeights(cfg.Priority.Weights)
	weights.Store(&w)

	opts := []service.Option{
		service.WithWeights(func() engine.Weights { return *weights.Load() }),
		service.WithStaleThreshold(time.Duration(cfg.Priority.StaleThresholdDays) * 24 * time.Hour),
	}

	var manager *backup.Manager
	if cfg.Backup.Enabled {
		manager, err = backup.NewManager(store, cfg.Backup.Dir, logger,
			backup.WithCompression(cfg.Backup.Compress),
			backup.WithRetention(cfg.Backup.RetentionDays, cfg.Backup.RetentionKeep),
			backup.WithMetrics(metrics),
		)
		if err != nil {
			return fmt.Errorf("backup engine: %w", err)
		}
		opts = append(opts, service.WithBackupRunner(manager))
	}

	svc := service.New(store, hub, logger, opts...)

	router := api.New(svc, store, cfg, logger, metrics).Routes()
	gateway := ws.New(hub, cfg.WebSocket, cfg.Auth, logger)
	router.Handle(cfg.WebSocket.Path, gateway)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", addr).Str("version", version).Msg("server listening")
		if err := httpSrv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		gateway.Shutdown(drainCtx)
		return httpSrv.Shutdown(drainCtx)
	})

	if manager != nil {
		scheduler, err := backup.NewScheduler(manager, cfg.Backup.Schedule, cfg.Backup.Incremental, logger)
		if err != nil {
			return fmt.Errorf("backup scheduler: %w", err)
		}
		g.Go(func() error {
			return ignoreCancel(scheduler.Run(ctx))
		})
	}

	if cfg.Priority.RecalcInterval > 0 {
		g.Go(func() error {
			return ignoreCancel(recalcLoop(ctx, svc, cfg.Priority.RecalcInterval, logger))
		})
	}

	g.Go(func() error {
		return ignoreCancel(metricsTap(ctx, hub, metrics))
	})

	g.Go(func() error {
		return ignoreCancel(cfg.Watch(ctx, logger, func(next *config.Config) {
			w := toEngineWeights(next.Priority.Weights)
			weights.Store(&w)
			logger.Info().Msg("priority weights reloaded")
		}))
	})

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// recalcLoop periodically recomputes every board's scores.
func recalcLoop(ctx context.Context, svc *service.Service, interval time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := svc.RecalculateAll(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("periodic recalc failed")
				continue
			}
			logger.Debug().Int("tasks", n).Msg("periodic recalc")
		}
	}
}

// metricsTap counts every published event and any drops signaled by
// the Lost flag.
func metricsTap(ctx context.Context, hub *eventbus.Hub, metrics *telemetry.Metrics) error {
	sub := hub.Subscribe(eventbus.AllBoards)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			metrics.EventPublished(ctx, string(ev.Type))
			if ev.Lost {
				metrics.EventDropped(ctx)
			}
		}
	}
}
