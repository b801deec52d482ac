package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fleetops/devicecontrol/internal/dispatch"
	"github.com/fleetops/devicecontrol/internal/ingest"
	"github.com/fleetops/devicecontrol/internal/middleware"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/ota"
	apierrors "github.com/fleetops/devicecontrol/internal/pkg/errors"
	"github.com/fleetops/devicecontrol/internal/pkg/response"
)

// handleHeartbeat implements POST /v1/heartbeat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var payload ingest.HeartbeatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if err := payload.Validate(); err != nil {
		response.Error(w, apierrors.NewValidationError("body", err.Error()))
		return
	}

	if err := s.ingestSvc.Ingest(r.Context(), deviceID, payload); err != nil {
		s.logger.Error("heartbeat ingest failed", "device_id", deviceID, "error", err)
		response.InternalError(w)
		return
	}

	response.NoContent(w)
}

// actionResultRequest is the decoded POST /v1/action-result body.
type actionResultRequest struct {
	RequestID string                `json:"request_id"`
	Type      string                `json:"type"`
	Status    models.DispatchResult `json:"status"`
	ExitCode  *int                  `json:"exit_code,omitempty"`
	Output    string                `json:"output,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// handleActionResult implements POST /v1/action-result: an
// idempotent ack on a dispatch row, 404 for an unknown request-id.
func (s *Server) handleActionResult(w http.ResponseWriter, r *http.Request) {
	var req actionResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}
	if req.RequestID == "" {
		response.ValidationError(w, "request_id", "required")
		return
	}

	found, err := s.dispatcher.Ack(r.Context(), dispatch.AckOutcome{
		RequestID: req.RequestID,
		Outcome:   req.Status,
		ExitCode:  req.ExitCode,
		Output:    req.Output,
		Error:     req.Error,
	})
	if err != nil {
		s.logger.Error("action-result ack failed", "request_id", req.RequestID, "error", err)
		response.InternalError(w)
		return
	}
	if !found {
		response.NotFound(w, "dispatch")
		return
	}

	// The install/verify side effects on the OTA deployment_stats counters
	// piggyback on the ack type, since the agent reports them through the
	// same channel rather than a separate endpoint.
	switch req.Type {
	case "UPDATE_ACK":
		if buildID := r.URL.Query().Get("build_id"); buildID != "" {
			_ = s.otaSvc.RecordInstallResult(r.Context(), buildID, req.Status == models.ResultOK)
		}
	}

	response.OK(w, map[string]string{"request_id": req.RequestID})
}

// installationUpdateRequest is the decoded POST /v1/apk/installation/update
// body. installation_id may also be carried in the body, duplicating the
// query parameter; see handleInstallationUpdate for the precedence rule.
type installationUpdateRequest struct {
	InstallationID string `json:"installation_id,omitempty"`
	BuildID        string `json:"build_id"`
	Status         string `json:"status"`
}

const (
	installStatusDownloaded    = "downloaded"
	installStatusInstalled     = "installed"
	installStatusInstallFailed = "install_failed"
	installStatusVerifyFailed  = "verify_failed"
)

// handleInstallationUpdate implements POST /v1/apk/installation/update: the
// agent reports download/install/verify progress for a build it pulled from
// the manifest endpoint. Two frontend routes both forward installation_id
// via query string while also carrying it in the body; the query parameter
// is authoritative when both are present, and a mismatch is rejected with
// 400 rather than silently preferring one side.
func (s *Server) handleInstallationUpdate(w http.ResponseWriter, r *http.Request) {
	var req installationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed json body")
		return
	}

	queryID := r.URL.Query().Get("installation_id")
	installationID := queryID
	if installationID == "" {
		installationID = req.InstallationID
	} else if req.InstallationID != "" && req.InstallationID != queryID {
		response.BadRequest(w, "installation_id query parameter and body disagree")
		return
	}
	if installationID == "" {
		response.ValidationError(w, "installation_id", "required")
		return
	}
	if req.BuildID == "" {
		response.ValidationError(w, "build_id", "required")
		return
	}

	var err error
	switch req.Status {
	case installStatusDownloaded:
		err = s.otaSvc.RecordDownload(r.Context(), req.BuildID)
	case installStatusInstalled:
		err = s.otaSvc.RecordInstallResult(r.Context(), req.BuildID, true)
	case installStatusInstallFailed:
		err = s.otaSvc.RecordInstallResult(r.Context(), req.BuildID, false)
	case installStatusVerifyFailed:
		err = s.otaSvc.RecordVerifyFailed(r.Context(), req.BuildID)
	default:
		response.ValidationError(w, "status", "must be one of downloaded, installed, install_failed, verify_failed")
		return
	}
	if err != nil {
		s.logger.Error("installation update failed", "build_id", req.BuildID, "status", req.Status, "error", err)
		response.InternalError(w)
		return
	}

	response.NoContent(w)
}

// handleOTAManifest implements GET /v1/agent/update.
func (s *Server) handleOTAManifest(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	packageName := r.URL.Query().Get("package_name")
	if packageName == "" {
		response.ValidationError(w, "package_name", "required")
		return
	}

	currentVersionCode, err := strconv.ParseInt(r.URL.Query().Get("current_version_code"), 10, 64)
	if err != nil {
		response.ValidationError(w, "current_version_code", "must be an integer")
		return
	}

	result, err := s.otaSvc.Manifest(r.Context(), deviceID, packageName, currentVersionCode)
	if err != nil {
		s.logger.Error("ota manifest lookup failed", "device_id", deviceID, "error", err)
		response.InternalError(w)
		return
	}

	if result.Reason != "" {
		w.Header().Set("X-Manifest-Reason", string(result.Reason))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	response.OK(w, manifestResponse(result))
}

func manifestResponse(result ota.ManifestResult) map[string]any {
	b := result.Build
	return map[string]any{
		"build_id":           b.BuildID,
		"version_code":       b.VersionCode,
		"version_name":       b.VersionName,
		"sha256":             b.SHA256,
		"signer_fingerprint": b.SignerFingerprint,
		"storage_url":        b.StorageURL,
		"wifi_only":          b.WifiOnly,
		"must_install":       b.MustInstall,
		"staged_rollout_pct": result.EffectivePct,
	}
}
