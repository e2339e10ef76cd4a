package model

import "time"

// Audit actions.
const (
	AuditLogin      = "auth.login"
	AuditRefresh    = "auth.refresh"
	AuditUserCreate = "user.create"
	AuditUserUpdate = "user.update"
	AuditUserDelete = "user.delete"
)

// Audit statuses.
const (
	AuditSuccess     = "success"
	AuditFailure     = "failure"
	AuditRateLimited = "rate_limited"
)

type AuditActor struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	IP     string `json:"ip,omitempty"`
}

type AuditEntry struct {
	Action     string         `json:"action"`
	OccurredAt time.Time      `json:"occurredAt"`
	Actor      AuditActor     `json:"actor"`
	Status     string         `json:"status"`
	Resource   string         `json:"resource,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
