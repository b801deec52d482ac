// Command server runs the device fleet control plane: heartbeat ingestion,
// command dispatch, the alert engine, OTA rollout management, and the
// admin HTTP/WebSocket surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetops/devicecontrol/internal/alerts"
	"github.com/fleetops/devicecontrol/internal/config"
	"github.com/fleetops/devicecontrol/internal/database"
	"github.com/fleetops/devicecontrol/internal/dispatch"
	"github.com/fleetops/devicecontrol/internal/governor"
	"github.com/fleetops/devicecontrol/internal/httpserver"
	"github.com/fleetops/devicecontrol/internal/ingest"
	"github.com/fleetops/devicecontrol/internal/notify"
	"github.com/fleetops/devicecontrol/internal/ota"
	"github.com/fleetops/devicecontrol/internal/partition"
	"github.com/fleetops/devicecontrol/internal/pushprovider"
	"github.com/fleetops/devicecontrol/internal/repository"
	"github.com/fleetops/devicecontrol/internal/scheduler"
	"github.com/fleetops/devicecontrol/internal/targeting"
	"github.com/fleetops/devicecontrol/internal/ws"
)

// poolSampleInterval is how often the pool governor refreshes its
// backpressure sample.
const poolSampleInterval = 5 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "Device fleet control plane",
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pg, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer pg.Close()
			return pg.RunMigrations(cfg.Database)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the last N migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				if _, err := fmt.Sscanf(args[0], "%d", &steps); err != nil {
					return fmt.Errorf("invalid step count %q: %w", args[0], err)
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pg, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			defer pg.Close()
			return pg.MigrateDown(cfg.Database, steps)
		},
	})
	return cmd
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	pg, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pg.Close()

	if err := pg.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := database.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	pool := pg.Pool()

	devices := repository.NewDeviceRepository(pool)
	heartbeats := repository.NewHeartbeatRepository(pool)
	lastStatus := repository.NewLastStatusRepository(pool)
	dispatches := repository.NewDispatchRepository(pool)
	bulkExecs := repository.NewBulkExecRepository(pool)
	builds := repository.NewOTABuildRepository(pool)
	stats := repository.NewDeploymentStatsRepository(pool)
	alertStates := repository.NewAlertStateRepository(pool)
	snapshots := repository.NewSelectionSnapshotRepository(pool)
	partitions := repository.NewPartitionRepository(pool)
	audit := repository.NewAuditRepository(pool)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	sender, err := pushprovider.NewFirebaseSender(bootCtx, cfg.Push.ProviderCredentials)
	bootCancel()
	if err != nil {
		return fmt.Errorf("push provider: %w", err)
	}

	notifier := notify.NewWebhookNotifier(cfg.Push.WebhookURL)
	archiver := partition.NewFileArchiver(cfg.Push.ArtifactStoreRoot)

	events := ingest.NewEventBus(logger)
	auth := ingest.NewAuthenticator(devices)
	ingestSvc := ingest.NewService(heartbeats, devices, lastStatus, events)
	reconciler := ingest.NewReconciler(pool, heartbeats, lastStatus, devices, logger)

	dispatcher := dispatch.NewService(dispatches, devices, bulkExecs, sender, []byte(cfg.Auth.HMACPrimaryKey))
	otaSvc := ota.NewService(builds, stats, devices, dispatcher)
	alertEng := alerts.NewEngine(lastStatus, devices, alertStates, dispatcher, notifier, cfg.Alerts, logger)
	resolver := targeting.NewResolver(devices, lastStatus, snapshots)
	partMgr := partition.NewManager(pool, partitions, archiver, logger)
	sched := scheduler.New(pool, alertEng, reconciler, partMgr, resolver, logger)
	poolGov := governor.NewPoolGovernor(pool, poolSampleInterval, logger)
	hub := ws.NewHub(logger)

	if err := partMgr.EnsureForwardPartitions(context.Background()); err != nil {
		return fmt.Errorf("partition bootstrap: %w", err)
	}

	srv := httpserver.New(httpserver.Deps{
		Config:     cfg,
		Devices:    devices,
		Dispatches: dispatches,
		BulkExecs:  bulkExecs,
		Builds:     builds,
		Audit:      audit,
		Partitions: partitions,
		Redis:      redisClient,
		Auth:       auth,
		IngestSvc:  ingestSvc,
		Dispatcher: dispatcher,
		OTASvc:     otaSvc,
		AlertEng:   alertEng,
		Resolver:   resolver,
		PartMgr:    partMgr,
		Scheduler:  sched,
		PoolGov:    poolGov,
		Hub:        hub,
		Logger:     logger,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go poolGov.Run(runCtx)
	go hub.Run(events.Subscribe())

	if err := sched.Start(runCtx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	select {
	case <-runCtx.Done():
		logger.Info("server: shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
