package domain

import "time"

// ActorType distinguishes admin-surface actions from agent-token actions.
type ActorType string

const (
	ActorHuman ActorType = "human"
	ActorAgent ActorType = "agent"
)

// AuditAction is the closed action taxonomy of the vault ledger.
type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionRotate  AuditAction = "rotate"
	ActionDisable AuditAction = "disable"
	ActionEnable  AuditAction = "enable"
	ActionDelete  AuditAction = "delete"
	ActionResolve AuditAction = "resolve"
	ActionReveal  AuditAction = "reveal"
)

// AuditStatus records the outcome of the audited decision.
type AuditStatus string

const (
	StatusOK    AuditStatus = "ok"
	StatusDeny  AuditStatus = "deny"
	StatusError AuditStatus = "error"
)

// AuditEntry is one immutable row of the vault ledger. Exactly one entry
// is written per authorization decision; entries are never mutated or
// deleted by this subsystem. Meta carries non-secret context only
// (handle, field, token prefix, batch request key).
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorType  ActorType
	Agent      string
	VaultItem  string
	Action     AuditAction
	SessionKey string
	ToolName   string
	Status     AuditStatus
	Error      string
	Meta       map[string]string
}
