// Package queue defines the audit events published to RabbitMQ whenever an
// administrator mutates portal state, plus the consumer that drains them into
// the audit log.
package queue

import "time"

// AuditQueueName is the durable queue audit events travel through.
const AuditQueueName = "portal.audit"

// Audit actions. One per mutating operation.
const (
	ActionLogin          = "session.login"
	ActionIdentityCreate = "identity.created"
	ActionIdentityUpdate = "identity.updated"
	ActionIdentityDelete = "identity.deleted"
	ActionModuleToggle   = "tenant.module_toggled"
	ActionTenantDelete   = "tenant.deleted"
	ActionTypeCreate     = "machine_type.created"
	ActionTypeUpdate     = "machine_type.updated"
	ActionTypeDelete     = "machine_type.deleted"
	ActionMachineCreate  = "machine.created"
	ActionMachineUpdate  = "machine.updated"
	ActionMachineDelete  = "machine.deleted"
	ActionFileUpload     = "file.uploaded"
)

// AuditEvent records who did what to which record.
type AuditEvent struct {
	Action     string    `json:"action"`
	ActorID    int64     `json:"actor_id"`
	ActorRole  int       `json:"actor_role"`
	TargetID   string    `json:"target_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
