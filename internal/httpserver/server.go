// Package httpserver wires the device-auth and admin-auth HTTP surfaces,
// the admin WebSocket channel, and the Prometheus scrape endpoint onto a
// single chi router.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetops/devicecontrol/internal/alerts"
	"github.com/fleetops/devicecontrol/internal/config"
	"github.com/fleetops/devicecontrol/internal/database"
	"github.com/fleetops/devicecontrol/internal/dispatch"
	"github.com/fleetops/devicecontrol/internal/governor"
	"github.com/fleetops/devicecontrol/internal/ingest"
	"github.com/fleetops/devicecontrol/internal/middleware"
	"github.com/fleetops/devicecontrol/internal/ota"
	"github.com/fleetops/devicecontrol/internal/partition"
	"github.com/fleetops/devicecontrol/internal/repository"
	"github.com/fleetops/devicecontrol/internal/scheduler"
	"github.com/fleetops/devicecontrol/internal/targeting"
	"github.com/fleetops/devicecontrol/internal/ws"
)

// heartbeatMaxBodyBytes bounds the heartbeat request body before JSON
// decoding even starts.
const heartbeatMaxBodyBytes = 1 << 20

// Server bundles every dependency a handler needs. Handlers are methods on
// this type so they share the dependencies without a global.
type Server struct {
	cfg *config.Config

	devices     repository.DeviceRepository
	dispatches  repository.DispatchRepository
	bulkExecs   repository.BulkExecRepository
	builds      repository.OTABuildRepository
	audit       repository.AuditRepository
	partitions  repository.PartitionRepository

	redis *database.Redis

	auth       *ingest.Authenticator
	ingestSvc  *ingest.Service
	dispatcher *dispatch.Service
	otaSvc     *ota.Service
	alertEng   *alerts.Engine
	resolver   *targeting.Resolver
	partMgr    *partition.Manager
	sched      *scheduler.Scheduler
	poolGov    *governor.PoolGovernor
	hub        *ws.Hub

	logger *slog.Logger
}

// Deps collects every collaborator New needs; named fields avoid a
// constructor with two dozen positional arguments.
type Deps struct {
	Config *config.Config

	Devices    repository.DeviceRepository
	Dispatches repository.DispatchRepository
	BulkExecs  repository.BulkExecRepository
	Builds     repository.OTABuildRepository
	Audit      repository.AuditRepository
	Partitions repository.PartitionRepository

	Redis *database.Redis

	Auth       *ingest.Authenticator
	IngestSvc  *ingest.Service
	Dispatcher *dispatch.Service
	OTASvc     *ota.Service
	AlertEng   *alerts.Engine
	Resolver   *targeting.Resolver
	PartMgr    *partition.Manager
	Scheduler  *scheduler.Scheduler
	PoolGov    *governor.PoolGovernor
	Hub        *ws.Hub

	Logger *slog.Logger
}

// New constructs a Server from its dependencies.
func New(d Deps) *Server {
	return &Server{
		cfg:        d.Config,
		devices:    d.Devices,
		dispatches: d.Dispatches,
		bulkExecs:  d.BulkExecs,
		builds:     d.Builds,
		audit:      d.Audit,
		partitions: d.Partitions,
		redis:      d.Redis,
		auth:       d.Auth,
		ingestSvc:  d.IngestSvc,
		dispatcher: d.Dispatcher,
		otaSvc:     d.OTASvc,
		alertEng:   d.AlertEng,
		resolver:   d.Resolver,
		partMgr:    d.PartMgr,
		sched:      d.Scheduler,
		poolGov:    d.PoolGov,
		hub:        d.Hub,
		logger:     d.Logger,
	}
}

// Router builds the full chi router: ambient middleware, then the
// device-auth group, then the admin-auth group.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS())
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Metrics())

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(heartbeatMaxBodyBytes))
			r.Use(middleware.DeviceAuth(s.auth))
			r.Use(s.poolGov.Admit())
			r.Use(middleware.RateLimit(s.redis, middleware.GeneralRateLimit))

			r.Post("/heartbeat", s.handleHeartbeat)
			r.Post("/action-result", s.handleActionResult)
			r.Get("/agent/update", s.handleOTAManifest)
			r.Post("/apk/installation/update", s.handleInstallationUpdate)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(s.cfg.Auth.AdminKey))
			r.Use(middleware.RateLimit(s.redis, middleware.GeneralRateLimit))

			r.Get("/admin/devices", s.handleListDevices)
			r.Get("/admin/devices/{id}", s.handleGetDevice)
			r.Post("/devices/{id}/command", s.handleDispatchCommand)
			r.Post("/remote-exec", s.handleBulkDispatch)
			r.Get("/remote-exec/{execID}", s.handleGetBulkExecution)

			r.Post("/admin/ota/builds", s.handleOTAStage)
			r.Post("/admin/ota/promote", s.handleOTAPromote)
			r.Post("/admin/ota/rollout", s.handleOTARollout)
			r.Post("/admin/ota/rollback", s.handleOTARollback)
			r.Post("/admin/ota/nudge", s.handleOTANudge)

			r.Post("/admin/jobs/alert-tick", s.handleRunAlertTick)
			r.Post("/admin/jobs/reconcile", s.handleRunReconciliation)
			r.Post("/admin/jobs/maintenance", s.handleRunMaintenance)

			r.Get("/admin/partitions", s.handleListPartitions)
			r.Get("/admin/pool-health", s.handlePoolHealth)

			r.Get("/admin/audit-logs", s.handleListAuditLogs)
		})
	})

	r.With(middleware.AdminAuth(s.cfg.Auth.AdminKey)).Get("/metrics", promhttp.Handler().ServeHTTP)
	r.With(middleware.AdminAuth(s.cfg.Auth.AdminKey)).Get("/ws/admin", s.hub.ServeHTTP)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requestDeadline is a 30-second ceiling for a handler's own work; no
// handler in this package applies it.
const requestDeadline = 30 * time.Second
