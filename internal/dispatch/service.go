// Package dispatch implements the HMAC-signed, idempotent, push-backed
// command dispatch primitive shared by single ad-hoc commands, bulk
// fan-out, and OTA update nudges.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/devicecontrol/internal/middleware"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/pushprovider"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// pushCallTimeout bounds a single push-provider call. Reduced from the
// originally documented 10s to bound worst-case fan-out latency.
const pushCallTimeout = 5 * time.Second

// maxOutputPreview truncates push-provider error bodies and device output
// previews to this many bytes before they're persisted.
const maxOutputPreview = 2048

// ErrActionNotAllowed is returned when the requested action isn't on the
// closed allow-list.
var ErrActionNotAllowed = fmt.Errorf("dispatch: action is not on the allow-list")

// ErrNoTargets is returned by bulk fan-out when target resolution leaves no
// eligible devices.
var ErrNoTargets = fmt.Errorf("dispatch: no devices with a push token match the target selection")

// Service implements the dispatch(device, action, extraPayload) primitive
// and its bulk fan-out variant.
type Service struct {
	dispatches repository.DispatchRepository
	devices    repository.DeviceRepository
	bulkExecs  repository.BulkExecRepository
	sender     pushprovider.Sender
	primaryKey []byte
	clock      func() time.Time
	// BulkPaceDelay is the inter-call delay used to pace fan-out against the
	// push provider.
	BulkPaceDelay time.Duration
}

// NewService constructs a dispatch Service.
func NewService(dispatches repository.DispatchRepository, devices repository.DeviceRepository, bulkExecs repository.BulkExecRepository, sender pushprovider.Sender, primaryHMACKey []byte) *Service {
	return &Service{
		dispatches:    dispatches,
		devices:       devices,
		bulkExecs:     bulkExecs,
		sender:        sender,
		primaryKey:    primaryHMACKey,
		clock:         time.Now,
		BulkPaceDelay: 50 * time.Millisecond,
	}
}

// Dispatch implements the single-device primitive:
// generate a request-id, validate the action, sign the payload, persist a
// pending row, call the push provider under a bounded timeout, and record
// the outcome. Returns the request-id regardless of whether the push call
// itself succeeded — failure is recorded on the row, not returned as an
// error, except when the action or device is invalid.
func (s *Service) Dispatch(ctx context.Context, deviceID string, action models.DispatchAction, extraPayload map[string]any) (string, error) {
	return s.dispatch(ctx, deviceID, action, extraPayload, nil)
}

// dispatch is the shared implementation; bulkExecID is non-nil only when
// called from BulkFanOut, so the dispatch row is linked to its parent run
// at creation time rather than via a separate backfill update.
func (s *Service) dispatch(ctx context.Context, deviceID string, action models.DispatchAction, extraPayload map[string]any, bulkExecID *string) (string, error) {
	if !models.AllowedActions[action] {
		return "", ErrActionNotAllowed
	}

	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if device == nil {
		return "", fmt.Errorf("dispatch: unknown device %q", deviceID)
	}

	requestID := uuid.NewString()
	ts := s.clock()

	payload := map[string]any{
		"request_id": requestID,
		"device_id":  deviceID,
		"action":     string(action),
		"ts":         ts.UTC().Format(time.RFC3339),
	}
	for k, v := range extraPayload {
		payload[k] = v
	}
	payload["hmac"] = SignPayload(s.primaryKey, requestID, deviceID, string(action), ts)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(payloadBytes)

	row := &models.Dispatch{
		RequestID:   requestID,
		DeviceID:    deviceID,
		Action:      action,
		PayloadHash: hex.EncodeToString(hash[:]),
		SentAt:      ts,
		BulkExecID:  bulkExecID,
	}
	if err := s.dispatches.Create(ctx, row); err != nil {
		return "", err
	}

	s.sendPush(ctx, requestID, device.PushToken, payload, action)

	return requestID, nil
}

// sendPush performs the bounded push-provider call and records its outcome
// on the dispatch row. Failures here never fail the caller's request — the
// device will discover the command lazily via a manifest poll / retry path,
// or the operator sees it in the dispatch record.
func (s *Service) sendPush(ctx context.Context, requestID, pushToken string, payload map[string]any, action models.DispatchAction) {
	callCtx, cancel := context.WithTimeout(ctx, pushCallTimeout)
	defer cancel()

	if pushToken == "" {
		_ = s.dispatches.UpdatePushResult(ctx, requestID, models.PushFailed, "", 0)
		middleware.IncrementDispatch(string(action), "failed_no_push_token")
		return
	}

	result, err := s.sender.Send(callCtx, pushToken, payload)
	if err != nil {
		status := models.PushFailed
		if callCtx.Err() == context.DeadlineExceeded {
			status = models.PushTimeout
		}
		_ = s.dispatches.UpdatePushResult(ctx, requestID, status, truncate(err.Error(), maxOutputPreview), result.HTTPStatus)
		middleware.IncrementDispatch(string(action), string(status))
		return
	}

	_ = s.dispatches.UpdatePushResult(ctx, requestID, models.PushSent, result.MessageID, result.HTTPStatus)
	middleware.IncrementDispatch(string(action), "sent")
}

// AckOutcome is the device's reported terminal state from the
// action-result endpoint.
type AckOutcome struct {
	RequestID string
	Outcome   models.DispatchResult
	ExitCode  *int
	Output    string
	Error     string
}

// Ack records the device's acknowledgement of a dispatched command,
// idempotently, and atomically bumps the parent bulk-execution counters
// when the dispatch belongs to a bulk run.
// Returns found=false for an unknown request-id (404 to the caller).
func (s *Service) Ack(ctx context.Context, ack AckOutcome) (found bool, err error) {
	message := ack.Error
	if message == "" {
		message = truncate(ack.Output, maxOutputPreview)
	}

	applied, deviceID, bulkExecID, err := s.dispatches.RecordAck(ctx, ack.RequestID, ack.Outcome, message, ack.ExitCode, truncate(ack.Output, maxOutputPreview))
	if err != nil {
		return false, err
	}
	if deviceID == "" {
		return false, nil
	}

	if applied && bulkExecID != nil {
		if err := s.bulkExecs.IncrementAckedOrErrored(ctx, *bulkExecID, ack.Outcome); err != nil {
			return true, err
		}
		if err := s.bulkExecs.UpdateResult(ctx, &models.BulkExecutionResult{
			ExecID: *bulkExecID, DeviceID: deviceID, Status: ack.Outcome, ExitCode: ack.ExitCode,
			Output: truncate(ack.Output, maxOutputPreview), Error: ack.Error,
		}); err != nil {
			return true, err
		}
	}

	return true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
