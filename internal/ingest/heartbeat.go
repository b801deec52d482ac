// Package ingest implements the heartbeat write path: device-token auth,
// payload validation, dedupe absorption, the dual-write transaction, tri-state
// service-up evaluation, and the hourly reconciliation job.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/pkg/ulid"
	"github.com/fleetops/devicecontrol/internal/repository"
)

var validate = validator.New()

// HeartbeatPayload is the decoded POST /v1/heartbeat body.
type HeartbeatPayload struct {
	Ts                         time.Time                    `json:"ts" validate:"required"`
	BatteryPct                 int                           `json:"battery_pct" validate:"min=0,max=100"`
	Charging                   bool                          `json:"charging"`
	NetworkType                string                        `json:"network_type" validate:"required"`
	SignalDBM                  int                           `json:"signal_dbm"`
	UptimeS                    int64                         `json:"uptime_s" validate:"min=0"`
	RAMUsedMB                  int                           `json:"ram_used_mb" validate:"min=0"`
	AgentVersion               string                        `json:"agent_version"`
	MonitoredForegroundRecentS *int64                        `json:"monitored_foreground_recent_s"`
	AppVersions                map[string]models.AppVersion  `json:"app_versions"`
}

// Validate runs struct-tag validation over the payload.
func (p HeartbeatPayload) Validate() error {
	return validate.Struct(p)
}

// Service implements the heartbeat ingestion pipeline.
type Service struct {
	heartbeats repository.HeartbeatRepository
	devices    repository.DeviceRepository
	lastStatus repository.LastStatusRepository
	events     *EventBus
	clock      func() time.Time
}

// NewService constructs a heartbeat ingest Service.
func NewService(heartbeats repository.HeartbeatRepository, devices repository.DeviceRepository, lastStatus repository.LastStatusRepository, events *EventBus) *Service {
	return &Service{heartbeats: heartbeats, devices: devices, lastStatus: lastStatus, events: events, clock: time.Now}
}

// Ingest runs the full dual-write pipeline for one device's heartbeat (spec
// §4.1 steps: dedupe bucket, tri-state evaluation, dual write, transition
// event). A duplicate within the dedupe bucket is absorbed and reported as
// success (err == nil), matching the device-facing contract of treating a
// retried heartbeat as accepted.
func (s *Service) Ingest(ctx context.Context, deviceID string, p HeartbeatPayload) error {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fmt.Errorf("ingest: unknown device %q", deviceID)
	}

	fg := models.ForegroundUnknown
	if p.MonitoredForegroundRecentS != nil && *p.MonitoredForegroundRecentS >= 0 {
		fg = *p.MonitoredForegroundRecentS
	}
	appInstalled := false
	if av, ok := p.AppVersions[device.MonitoredPackage]; ok {
		appInstalled = av.Installed
	}
	serviceUp := models.EvaluateServiceUp(appInstalled, fg, device.ThresholdMinutes)

	previous, err := s.lastStatus.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	hb := &models.Heartbeat{
		DeviceID:          deviceID,
		Ts:                p.Ts,
		MonotonicID:       ulid.NewFromTime(p.Ts),
		BatteryPct:        p.BatteryPct,
		Charging:          p.Charging,
		NetworkType:       p.NetworkType,
		SignalDBM:         p.SignalDBM,
		UptimeSeconds:     p.UptimeS,
		RAMUsedMB:         p.RAMUsedMB,
		ForegroundRecentS: fg,
		AgentVersion:      p.AgentVersion,
		AppVersions:       p.AppVersions,
	}

	advanced, err := s.heartbeats.Ingest(ctx, hb, serviceUp, device.ThresholdMinutes)
	if err != nil && err != repository.ErrDuplicateBucket {
		return err
	}

	if err := s.devices.UpdateLastHeartbeat(ctx, deviceID, p.Ts); err != nil {
		return err
	}

	if advanced {
		s.publishTransitions(deviceID, previous, serviceUp, p.Ts)
	}

	return nil
}

// publishTransitions emits state-transition events when the new service_up
// differs from the previously stored projection. Transitions touching
// Unknown never reach the event bus, so loss of signal alone never alerts.
func (s *Service) publishTransitions(deviceID string, previous *models.LastStatus, newServiceUp models.ServiceUpState, at time.Time) {
	if s.events == nil {
		return
	}

	wasOffline := previous == nil
	s.events.Publish(models.StateTransitionEvent{Type: "device.heartbeat", DeviceID: deviceID, At: at})
	if wasOffline {
		s.events.Publish(models.StateTransitionEvent{Type: "device.online", DeviceID: deviceID, At: at})
	}

	if previous == nil || previous.ServiceUp == newServiceUp {
		return
	}
	if previous.ServiceUp == models.ServiceUpUnknown || newServiceUp == models.ServiceUpUnknown {
		return
	}

	evtType := "service.down"
	if newServiceUp == models.ServiceUpTrue {
		evtType = "service.up"
	}
	s.events.Publish(models.StateTransitionEvent{Type: evtType, DeviceID: deviceID, At: at})
}
