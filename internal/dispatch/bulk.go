package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/targeting"
)

// BulkRequest is the decoded /v1/remote-exec body.
type BulkRequest struct {
	Mode    models.BulkExecMode
	Action  string
	Command string // allow-listed shell subset, mode=shell
	Targets targeting.Spec
}

// BulkFanOut resolves targets under a single read, pre-inserts pending
// child rows, then invokes the dispatch primitive per device with the
// spec's ~50ms inter-call pacing. Devices without a push token
// are excluded by the resolver; if that leaves zero devices the call
// returns ErrNoTargets.
func (s *Service) BulkFanOut(ctx context.Context, resolver *targeting.Resolver, req BulkRequest) (execID string, err error) {
	_, deviceIDs, err := resolver.Resolve(ctx, req.Targets)
	if err != nil {
		return "", err
	}
	if len(deviceIDs) == 0 {
		return "", ErrNoTargets
	}

	action := req.Action
	if req.Mode == models.BulkExecModeShell {
		action = string(models.ActionExecShell)
	}

	rawReq, _ := json.Marshal(req)
	execID = uuid.NewString()

	bulk := &models.BulkExecution{
		ExecID:     execID,
		Mode:       req.Mode,
		Action:     action,
		RawRequest: string(rawReq),
		TargetSpec: targetSpecLabel(req.Targets),
		Sent:       len(deviceIDs),
	}
	if err := s.bulkExecs.Create(ctx, bulk); err != nil {
		return "", err
	}

	requestIDs := make(map[string]string, len(deviceIDs))
	extra := map[string]any{}
	if req.Mode == models.BulkExecModeShell {
		extra["command"] = req.Command
	}

	// Dispatch sequentially, paced by BulkPaceDelay, linking each dispatch
	// row to the parent exec-id at creation time. Child result rows are
	// pre-inserted only once every request-id is known, so a late ack
	// arriving mid fan-out always finds a row for the devices already sent.
	for _, deviceID := range deviceIDs {
		requestID, dispatchErr := s.dispatch(ctx, deviceID, models.DispatchAction(action), extra, &execID)
		if dispatchErr != nil {
			continue
		}
		requestIDs[deviceID] = requestID
		time.Sleep(s.BulkPaceDelay)
	}

	if err := s.bulkExecs.CreatePendingResults(ctx, execID, deviceIDs, requestIDs); err != nil {
		return execID, err
	}

	return execID, nil
}

func targetSpecLabel(spec targeting.Spec) string {
	switch {
	case spec.All:
		return "all"
	case len(spec.Aliases) > 0:
		return "aliases"
	case spec.Filter != nil:
		return "filter"
	default:
		return "unknown"
	}
}
