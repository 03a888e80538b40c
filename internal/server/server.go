package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/audit"
	"github.com/strefethen/room-combine-go/internal/auth"
	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/config"
	"github.com/strefethen/room-combine-go/internal/db"
	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/feedback"
	"github.com/strefethen/room-combine-go/internal/orchestrator"
	"github.com/strefethen/room-combine-go/internal/panel"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/peripherals"
	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/schedule"
	"github.com/strefethen/room-combine-go/internal/system"
	"github.com/strefethen/room-combine-go/internal/topology"
	"github.com/strefethen/room-combine-go/internal/vlan"
	"github.com/strefethen/room-combine-go/internal/zones"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests. It runs inside
// api.RequestIDMiddleware so the line carries the request ID.
func requestLoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			api.RequestLogger(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.status).
				Dur("duration", time.Since(start).Round(time.Millisecond)).
				Msg("request")
		})
	}
}

// Options controls server wiring.
type Options struct {
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// DisableScheduler skips the split reminder even when configured.
	DisableScheduler bool
}

func retryPolicy(cfg config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Initial:     config.Millis(cfg.RetryInitialMs),
		Max:         config.Millis(cfg.RetryMaxMs),
		Multiplier:  2,
	}
}

// activityPolicy is the short policy for pre-combine activity checks. The
// operator is waiting on the answer.
func activityPolicy(cfg config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.ActivityRetryMaxAttempts,
		Initial:     config.Millis(cfg.ActivityRetryInitialMs),
		Max:         4 * config.Millis(cfg.ActivityRetryInitialMs),
		Multiplier:  2,
	}
}

// NewHandler builds the HTTP handler, starts the orchestrator and its
// background workers, and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = &log.Logger
	}

	topo, err := topology.Load(cfg.TopologyPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("path", cfg.TopologyPath).Str("mode", string(topo.Mode)).Int("nodes", len(topo.Nodes)).Msg("topology loaded")

	logger.Info().Str("path", cfg.SQLiteDBPath).Msg("using database")
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	policy := retryPolicy(cfg)
	client := codec.NewClient(cfg.DeviceTimeout(), cfg.DeviceInsecureTLS)
	messenger := peer.NewMessenger(client, policy, logger)
	activity := peer.NewActivityChecker(client, activityPolicy(cfg), logger)
	switchConfigurator := vlan.NewConfigurator(topo.Switch, cfg.DeviceTimeout(), cfg.DeviceInsecureTLS, policy, logger)
	hub := peripherals.NewHub(peripherals.DefaultBuffer, logger)
	board := panel.NewBoard()
	applier := director.NewApplier(client, messenger, topo, logger)

	auditService := audit.NewService(dbPair, cfg.AuditRetentionDays, logger)

	// The monitor is created before the orchestrator it reports to.
	var orch *orchestrator.Orchestrator
	monitor := zones.NewMonitor(cfg.ZoneMonitorURL, func(ev zones.Event) {
		orch.HandleZoneEvent(ev)
	}, policy, logger)

	orch = orchestrator.New(orchestrator.Deps{
		Topology:     topo,
		TopologyPath: cfg.TopologyPath,
		Switch:       switchConfigurator,
		Messenger:    messenger,
		Activity:     activity,
		Codec:        client,
		Monitor:      monitor,
		Peripherals:  hub,
		Actions:      applier,
		State:        room.NewStateRepository(dbPair),
		Operations:   room.NewOperationsRepository(dbPair),
		Audit:        auditService,
		Panel:        board,
		Timing: orchestrator.Timing{
			SettleDelay:         config.Millis(cfg.SettleDelayMs),
			ProgressInterval:    config.Millis(cfg.ProgressIntervalMs),
			MigrationTimeout:    config.Millis(cfg.MigrationTimeoutMs),
			RepairDelay:         config.Millis(cfg.PanelRepairDelayMs),
			ConfirmationTimeout: config.Millis(cfg.ConfirmationTimeoutMs),
			Hold:                config.Millis(cfg.HoldDurationMs),
			AudienceHold:        config.Millis(cfg.AudienceHoldMs),
			ActivityTimeout:     config.Millis(cfg.ActivityTimeoutMs),
		},
		Retry:         policy,
		BannerEnabled: cfg.BannerEnabled,
	}, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	if err := orch.Start(runCtx); err != nil {
		cancelRun()
		_ = dbPair.Close()
		return nil, nil, fmt.Errorf("start orchestrator: %w", err)
	}
	go applier.Run(runCtx)
	go func() {
		if err := monitor.Run(runCtx); err != nil {
			logger.Error().Err(err).Msg("zone monitor stopped")
		}
	}()
	auditService.StartPruneJob()

	var reminder *schedule.Reminder
	if !options.DisableScheduler {
		reminder, err = schedule.New(cfg.SplitReminderCron, nil, orch, logger)
		switch {
		case errors.Is(err, schedule.ErrNoSchedule):
		case err != nil:
			cancelRun()
			<-orch.Done()
			_ = dbPair.Close()
			return nil, nil, err
		default:
			reminder.Start()
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware(logger))
	router.Use(requestLoggerMiddleware())
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg, orch))

	registerHealthRoutes(router, orch, auditService)
	auth.RegisterRoutes(router, orch, cfg, logger)
	orchestrator.RegisterRoutes(router, orch)
	panel.RegisterRoutes(router, board)
	feedback.RegisterRoutes(router, feedback.NewHandler(hub, orch, logger))
	audit.RegisterRoutes(router, auditService)

	var reminderStatus system.ReminderStatus
	if reminder != nil {
		reminderStatus = reminder
	}
	system.RegisterRoutes(router, system.NewService(dbPair, monitor, cfg.ZoneMonitorURL, reminderStatus, logger))

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if reminder != nil {
			reminder.Stop()
		}
		cancelRun()
		select {
		case <-orch.Done():
		case <-ctx.Done():
			logger.Warn().Msg("orchestrator did not stop before the shutdown deadline")
		}
		messenger.Wait()
		auditService.StopPruneJob()
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router, orch *orchestrator.Orchestrator, auditService *audit.Service) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "room-combine",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		select {
		case <-orch.Done():
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "stopped"})
		default:
		}
		if !auditService.IsHealthy() {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
