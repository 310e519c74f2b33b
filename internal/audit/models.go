package audit

import "time"

// Entry is one append-only audit record. RecordKey is the portal's internal
// secret id when the action touched a known record, otherwise the raw external
// reference. Entries are created once per action and never mutated; the store
// expires them at ExpiresAt rather than the portal deleting them.
type Entry struct {
	RecordKey string    `json:"recordKey"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actorId"`
	Action    string    `json:"action"`
	IP        string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Canonical portal actions. External change events map their own kinds onto
// these; unmapped kinds pass through as their literal name.
const (
	ActionCreate         = "CREATE"
	ActionRead           = "READ"
	ActionUpdate         = "UPDATE"
	ActionDelete         = "DELETE"
	ActionRotationChange = "ROTATION_CHANGE"
)
