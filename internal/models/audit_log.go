package models

import (
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
)

// ActorType represents the type of entity performing an action.
type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeDevice ActorType = "device"
	ActorTypeSystem ActorType = "system"
)

// AuditEvent represents the type of audit event. Device-fleet admin actions
// replace the account/billing events of a multi-tenant SaaS control plane:
// dispatch, OTA lifecycle, and scheduler triggers are what an operator does
// here.
type AuditEvent string

const (
	AuditEventDispatchCreated    AuditEvent = "dispatch.created"
	AuditEventBulkDispatchCreated AuditEvent = "bulk_dispatch.created"

	AuditEventOTAPromoted  AuditEvent = "ota.promoted"
	AuditEventOTARolledBack AuditEvent = "ota.rolled_back"
	AuditEventOTARolloutAdjusted AuditEvent = "ota.rollout_adjusted"
	AuditEventOTANudgeSent AuditEvent = "ota.nudge_sent"

	AuditEventSchedulerTriggered AuditEvent = "scheduler.triggered"

	AuditEventDeviceTokenRevoked AuditEvent = "device.token_revoked"
	AuditEventDeviceAliasChanged AuditEvent = "device.alias_changed"

	AuditEventAdminLogin AuditEvent = "admin.login"
)

// ResourceType represents the type of resource being acted upon.
type ResourceType string

const (
	ResourceTypeDevice     ResourceType = "device"
	ResourceTypeDispatch   ResourceType = "dispatch"
	ResourceTypeBulkExec   ResourceType = "bulk_execution"
	ResourceTypeOTABuild   ResourceType = "ota_build"
	ResourceTypeSchedulerJob ResourceType = "scheduler_job"
)

// AuditLog represents an audit log entry for an admin action.
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Event        AuditEvent      `json:"event" db:"event"`
	ActorID      *string         `json:"actor_id,omitempty" db:"actor_id"`
	ActorType    ActorType       `json:"actor_type" db:"actor_type"`
	ResourceType *ResourceType   `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty" db:"resource_id"`
	IPAddress    *net.IP         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    *string         `json:"user_agent,omitempty" db:"user_agent"`
	Metadata     json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// AuditLogQuery represents query parameters for fetching audit logs.
type AuditLogQuery struct {
	Event        *AuditEvent
	ActorID      *string
	ResourceType *ResourceType
	ResourceID   *string
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
}
