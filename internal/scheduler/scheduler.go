// Package scheduler drives the three periodic jobs: the alert tick, the
// hourly reconciliation tick, and nightly maintenance. Each
// job is guarded by a Postgres advisory lock and is also reachable as an
// idempotent admin endpoint, so external cron can drive it reentrantly.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/fleetops/devicecontrol/internal/alerts"
	"github.com/fleetops/devicecontrol/internal/dblock"
	"github.com/fleetops/devicecontrol/internal/ingest"
	"github.com/fleetops/devicecontrol/internal/partition"
	"github.com/fleetops/devicecontrol/internal/targeting"
)

const (
	alertTickLock     = "scheduler.alert_tick"
	maintenanceLock   = "scheduler.nightly_maintenance"
)

// Scheduler owns the cron runtime and the job functions it, and the admin
// HTTP surface, invoke.
type Scheduler struct {
	pool        *pgxpool.Pool
	alertEngine *alerts.Engine
	reconciler  *ingest.Reconciler
	partitions  *partition.Manager
	resolver    *targeting.Resolver
	logger      *slog.Logger
	cron        *cron.Cron
}

// New constructs a Scheduler.
func New(pool *pgxpool.Pool, alertEngine *alerts.Engine, reconciler *ingest.Reconciler, partitions *partition.Manager, resolver *targeting.Resolver, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pool:        pool,
		alertEngine: alertEngine,
		reconciler:  reconciler,
		partitions:  partitions,
		resolver:    resolver,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start registers the three jobs on their cadence and starts the cron
// runtime. Call Stop on shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every 60s", func() { s.runAlertTick(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 3600s", func() { s.runReconciliation(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 24h", func() { s.runNightlyMaintenance(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop drains in-flight jobs and halts the cron runtime.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// RunAlertTick runs the alert engine's tick, also exposed as an admin
// endpoint for external-cron reentrancy.
func (s *Scheduler) RunAlertTick(ctx context.Context) error {
	acquired, release, err := dblock.TryLock(ctx, s.pool, alertTickLock)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Info("scheduler: alert tick skipped, lock held elsewhere")
		return nil
	}
	defer release()

	return s.alertEngine.Tick(ctx)
}

func (s *Scheduler) runAlertTick(ctx context.Context) {
	if err := s.RunAlertTick(ctx); err != nil {
		s.logger.Error("scheduler: alert tick failed", slog.Any("error", err))
	}
}

// RunReconciliation runs the hourly last-status reconciliation.
func (s *Scheduler) RunReconciliation(ctx context.Context) error {
	return s.reconciler.Run(ctx)
}

func (s *Scheduler) runReconciliation(ctx context.Context) {
	if err := s.RunReconciliation(ctx); err != nil {
		s.logger.Error("scheduler: reconciliation failed", slog.Any("error", err))
	}
}

// RunNightlyMaintenance creates forward partitions, refreshes counts,
// archives and drops old ones, and sweeps expired selection snapshots.
func (s *Scheduler) RunNightlyMaintenance(ctx context.Context) error {
	acquired, release, err := dblock.TryLock(ctx, s.pool, maintenanceLock)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Info("scheduler: nightly maintenance skipped, lock held elsewhere")
		return nil
	}
	defer release()

	if err := s.partitions.EnsureForwardPartitions(ctx); err != nil {
		return err
	}
	if err := s.partitions.RefreshCounts(ctx); err != nil {
		return err
	}
	if err := s.partitions.ArchiveOlderThan(ctx); err != nil {
		return err
	}
	if err := s.partitions.DropArchived(ctx); err != nil {
		return err
	}
	if _, err := s.resolver.SweepExpired(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) runNightlyMaintenance(ctx context.Context) {
	if err := s.RunNightlyMaintenance(ctx); err != nil {
		s.logger.Error("scheduler: nightly maintenance failed", slog.Any("error", err))
	}
}
