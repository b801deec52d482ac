package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetops/devicecontrol/internal/dispatch"
	"github.com/fleetops/devicecontrol/internal/models"
	apierrors "github.com/fleetops/devicecontrol/internal/pkg/errors"
	"github.com/fleetops/devicecontrol/internal/pkg/response"
	"github.com/fleetops/devicecontrol/internal/targeting"
)

var adminValidate = validator.New()

// displayStalenessMinutes is a fixed display hint shown alongside a device
// in the admin UI. It never drives alerting; the real offline threshold is
// config.AlertConfig.OfflineMinutes, evaluated by the alert engine.
const displayStalenessMinutes = 12

// deviceView wraps a device with display-only fields that have no bearing
// on alerting or dispatch decisions.
type deviceView struct {
	*models.Device
	StalenessMinutes int `json:"staleness_minutes"`
}

func newDeviceView(d *models.Device) deviceView {
	return deviceView{Device: d, StalenessMinutes: displayStalenessMinutes}
}

// handleListDevices implements GET /v1/admin/devices: a
// paginated read of the device table, newest first.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	devices, err := s.devices.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list devices failed", "error", err)
		response.InternalError(w)
		return
	}

	views := make([]deviceView, len(devices))
	for i, d := range devices {
		views[i] = newDeviceView(d)
	}
	response.OK(w, views)
}

// handleGetDevice implements GET /v1/admin/devices/{id}.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get device failed", "device_id", id, "error", err)
		response.InternalError(w)
		return
	}
	if device == nil {
		response.NotFound(w, "device")
		return
	}
	response.OK(w, newDeviceView(device))
}

// dispatchCommandRequest is the decoded POST /v1/devices/{id}/command body.
type dispatchCommandRequest struct {
	Action  models.DispatchAction `json:"action" validate:"required"`
	Payload map[string]any        `json:"payload"`
}

// handleDispatchCommand implements POST /v1/devices/{id}/command: the
// single-device dispatch primitive.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req dispatchCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := adminValidate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("action", err.Error()))
		return
	}

	requestID, err := s.dispatcher.Dispatch(r.Context(), deviceID, req.Action, req.Payload)
	if err != nil {
		if err == dispatch.ErrActionNotAllowed {
			response.Error(w, apierrors.NewValidationError("action", "not on the allow-list"))
			return
		}
		s.logger.Error("dispatch command failed", "device_id", deviceID, "error", err)
		response.InternalError(w)
		return
	}

	response.Created(w, map[string]string{"request_id": requestID})
}

// remoteExecRequest is the decoded POST /v1/remote-exec body.
type remoteExecRequest struct {
	Mode    models.BulkExecMode `json:"mode" validate:"required"`
	Action  string              `json:"action"`
	Command string              `json:"command"`
	Targets struct {
		All     bool     `json:"all"`
		Aliases []string `json:"aliases"`
		Filter  *struct {
			Online *bool `json:"online"`
		} `json:"filter"`
	} `json:"targets"`
}

// handleBulkDispatch implements POST /v1/remote-exec: the bulk fan-out
// dispatch primitive.
func (s *Server) handleBulkDispatch(w http.ResponseWriter, r *http.Request) {
	var req remoteExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := adminValidate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("mode", err.Error()))
		return
	}

	spec := targeting.Spec{All: req.Targets.All, Aliases: req.Targets.Aliases}
	if req.Targets.Filter != nil {
		spec.Filter = &targeting.Filter{Online: req.Targets.Filter.Online}
	}

	execID, err := s.dispatcher.BulkFanOut(r.Context(), s.resolver, dispatch.BulkRequest{
		Mode:    req.Mode,
		Action:  req.Action,
		Command: req.Command,
		Targets: spec,
	})
	if err != nil {
		if err == dispatch.ErrNoTargets {
			response.BadRequest(w, "target selection matched no devices with a push token")
			return
		}
		s.logger.Error("bulk dispatch failed", "error", err)
		response.InternalError(w)
		return
	}

	response.Created(w, map[string]string{"exec_id": execID})
}

// handleGetBulkExecution implements GET /v1/remote-exec/{execID}.
func (s *Server) handleGetBulkExecution(w http.ResponseWriter, r *http.Request) {
	execID := chi.URLParam(r, "execID")
	exec, err := s.bulkExecs.GetByExecID(r.Context(), execID)
	if err != nil {
		s.logger.Error("get bulk execution failed", "exec_id", execID, "error", err)
		response.InternalError(w)
		return
	}
	if exec == nil {
		response.NotFound(w, "bulk_execution")
		return
	}
	response.OK(w, exec)
}

// otaStageRequest is the decoded POST /v1/admin/ota/builds body.
type otaStageRequest struct {
	PackageName       string `json:"package_name" validate:"required"`
	VersionCode       int64  `json:"version_code" validate:"required"`
	VersionName       string `json:"version_name" validate:"required"`
	SHA256            string `json:"sha256" validate:"required,len=64"`
	SignerFingerprint string `json:"signer_fingerprint" validate:"required"`
	StorageURL        string `json:"storage_url" validate:"required"`
	WifiOnly          bool   `json:"wifi_only"`
	MustInstall       bool   `json:"must_install"`
}

// handleOTAStage implements POST /v1/admin/ota/builds: register a new build
// as a promotion candidate.
func (s *Server) handleOTAStage(w http.ResponseWriter, r *http.Request) {
	var req otaStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := adminValidate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("build", err.Error()))
		return
	}

	build := &models.OTABuild{
		BuildID:           req.SHA256[:16],
		PackageName:       req.PackageName,
		VersionCode:       req.VersionCode,
		VersionName:       req.VersionName,
		SHA256:            req.SHA256,
		SignerFingerprint: req.SignerFingerprint,
		StorageURL:        req.StorageURL,
		WifiOnly:          req.WifiOnly,
		MustInstall:       req.MustInstall,
	}
	if err := s.otaSvc.Stage(r.Context(), build); err != nil {
		s.logger.Error("ota stage failed", "package", req.PackageName, "error", err)
		response.InternalError(w)
		return
	}
	response.Created(w, build)
}

// otaPromoteRequest is the decoded POST /v1/admin/ota/promote body.
type otaPromoteRequest struct {
	PackageName string `json:"package_name" validate:"required"`
	BuildID     string `json:"build_id" validate:"required"`
	PromotedBy  string `json:"promoted_by" validate:"required"`
	RolloutPct  int    `json:"rollout_pct" validate:"min=0,max=100"`
}

// handleOTAPromote implements POST /v1/admin/ota/promote: atomically demote
// the current build and promote the new one.
func (s *Server) handleOTAPromote(w http.ResponseWriter, r *http.Request) {
	var req otaPromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := adminValidate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("build_id", err.Error()))
		return
	}

	rollbackFrom, err := s.otaSvc.Promote(r.Context(), req.PackageName, req.BuildID, req.PromotedBy, req.RolloutPct)
	if err != nil {
		s.logger.Error("ota promote failed", "build_id", req.BuildID, "error", err)
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]any{"build_id": req.BuildID, "rollback_from_build_id": rollbackFrom})
}

// otaRolloutRequest is the decoded POST /v1/admin/ota/rollout body.
type otaRolloutRequest struct {
	BuildID string `json:"build_id" validate:"required"`
	Pct     int    `json:"pct" validate:"min=0,max=100"`
}

// handleOTARollout implements POST /v1/admin/ota/rollout: adjusts only the
// staged_rollout_pct column.
func (s *Server) handleOTARollout(w http.ResponseWriter, r *http.Request) {
	var req otaRolloutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := adminValidate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("pct", err.Error()))
		return
	}

	if err := s.otaSvc.AdjustRollout(r.Context(), req.BuildID, req.Pct); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.NoContent(w)
}

// otaRollbackRequest is the decoded POST /v1/admin/ota/rollback body.
type otaRollbackRequest struct {
	BuildID        string `json:"build_id" validate:"required"`
	Operator       string `json:"operator" validate:"required"`
	Pct            int    `json:"pct" validate:"min=0,max=100"`
	ForceDowngrade bool   `json:"force_downgrade"`
}

// handleOTARollback implements POST /v1/admin/ota/rollback: re-promotes the
// build's recorded rollback target.
func (s *Server) handleOTARollback(w http.ResponseWriter, r *http.Request) {
	var req otaRollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := adminValidate.Struct(req); err != nil {
		response.Error(w, apierrors.NewValidationError("build_id", err.Error()))
		return
	}

	rollbackFrom, err := s.otaSvc.Rollback(r.Context(), req.BuildID, req.Operator, req.Pct, req.ForceDowngrade)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.OK(w, map[string]any{"rolled_back_to": rollbackFrom})
}

// otaNudgeRequest is the decoded POST /v1/admin/ota/nudge body.
type otaNudgeRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// handleOTANudge implements POST /v1/admin/ota/nudge: prompts a device to
// re-poll the manifest immediately.
func (s *Server) handleOTANudge(w http.ResponseWriter, r *http.Request) {
	var req otaNudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if req.DeviceID == "" {
		response.ValidationError(w, "device_id", "required")
		return
	}

	requestID, err := s.otaSvc.Nudge(r.Context(), req.DeviceID)
	if err != nil {
		s.logger.Error("ota nudge failed", "device_id", req.DeviceID, "error", err)
		response.InternalError(w)
		return
	}
	response.Created(w, map[string]string{"request_id": requestID})
}

// handleRunAlertTick implements POST /v1/admin/jobs/alert-tick: the alert
// tick is also reachable from here so external cron can drive it
// reentrantly alongside the in-process scheduler.
func (s *Server) handleRunAlertTick(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.RunAlertTick(r.Context()); err != nil {
		s.logger.Error("admin-triggered alert tick failed", "error", err)
		response.InternalError(w)
		return
	}
	response.Accepted(w, map[string]string{"job": "alert_tick"})
}

// handleRunReconciliation implements POST /v1/admin/jobs/reconcile.
func (s *Server) handleRunReconciliation(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.RunReconciliation(r.Context()); err != nil {
		s.logger.Error("admin-triggered reconciliation failed", "error", err)
		response.InternalError(w)
		return
	}
	response.Accepted(w, map[string]string{"job": "reconciliation"})
}

// handleRunMaintenance implements POST /v1/admin/jobs/maintenance.
func (s *Server) handleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.RunNightlyMaintenance(r.Context()); err != nil {
		s.logger.Error("admin-triggered maintenance failed", "error", err)
		response.InternalError(w)
		return
	}
	response.Accepted(w, map[string]string{"job": "nightly_maintenance"})
}

// handleListPartitions implements GET /v1/admin/partitions: the current
// partition catalog, oldest first.
func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	partitions, err := s.partitions.ListOlderThan(r.Context(), time.Now().Add(100*365*24*time.Hour),
		models.PartitionActive, models.PartitionArchived, models.PartitionArchiveFailed, models.PartitionDropped)
	if err != nil {
		s.logger.Error("list partitions failed", "error", err)
		response.InternalError(w)
		return
	}
	response.OK(w, partitions)
}

// handlePoolHealth implements GET /v1/admin/pool-health: a snapshot of the
// database pool governor's last sample.
func (s *Server) handlePoolHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{"overloaded": s.poolGov.Overloaded()})
}

// handleListAuditLogs implements GET /v1/admin/audit-logs.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := models.AuditLogQuery{Limit: queryInt(r, "limit", 100)}
	if v := r.URL.Query().Get("event"); v != "" {
		event := models.AuditEvent(v)
		q.Event = &event
	}
	if v := r.URL.Query().Get("resource_type"); v != "" {
		rt := models.ResourceType(v)
		q.ResourceType = &rt
	}
	if v := r.URL.Query().Get("resource_id"); v != "" {
		q.ResourceID = &v
	}

	logs, err := s.audit.List(r.Context(), q)
	if err != nil {
		s.logger.Error("list audit logs failed", "error", err)
		response.InternalError(w)
		return
	}
	response.OK(w, logs)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
