// Package governor implements the backpressure primitives that keep the
// control plane healthy under load: a pool-utilization sampler and a
// request-level admission gate that turns pool exhaustion into a 503 instead
// of an unbounded queue.
package governor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/middleware"
)

// backpressureThresholdPct is the pool-utilization level past which the
// admission gate starts rejecting new write-path requests.
const backpressureThresholdPct = 95.0

// PoolGovernor samples the database pool's statistics on a ticker, mirrors
// them into Prometheus gauges, and exposes a cheap in-process check the HTTP
// layer uses to shed load before it ever reaches the pool.
type PoolGovernor struct {
	pool       *pgxpool.Pool
	interval   time.Duration
	logger     *slog.Logger
	overloaded atomic.Bool
}

// NewPoolGovernor constructs a PoolGovernor sampling every interval.
func NewPoolGovernor(pool *pgxpool.Pool, interval time.Duration, logger *slog.Logger) *PoolGovernor {
	return &PoolGovernor{pool: pool, interval: interval, logger: logger}
}

// Run samples pool stats until ctx is cancelled. Intended to run in its own
// goroutine, started alongside the scheduler at process boot.
func (g *PoolGovernor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sample()
		}
	}
}

func (g *PoolGovernor) sample() {
	stat := g.pool.Stat()
	maxConns := stat.MaxConns()
	inUse := stat.AcquiredConns()

	var pct float64
	if maxConns > 0 {
		pct = float64(inUse) / float64(maxConns) * 100
	}

	middleware.SetPoolStats(inUse, pct)
	overloaded := pct >= backpressureThresholdPct
	if overloaded && !g.overloaded.Load() {
		g.logger.Warn("governor: database pool entering backpressure",
			slog.Int32("in_use", inUse), slog.Int32("max", maxConns), slog.Float64("pct", pct))
	}
	if !overloaded && g.overloaded.Load() {
		g.logger.Info("governor: database pool backpressure cleared",
			slog.Int32("in_use", inUse), slog.Int32("max", maxConns))
	}
	g.overloaded.Store(overloaded)
}

// Overloaded reports the last-sampled backpressure state; the HTTP
// middleware checks this before admitting a write-path request rather than
// acquiring a connection to find out.
func (g *PoolGovernor) Overloaded() bool {
	return g.overloaded.Load()
}
