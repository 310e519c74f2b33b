package tracker

import "time"

// ActorIdentity describes who made a direct change against the vault,
// as reported by the event source.
type ActorIdentity struct {
	Type              string `json:"type"`
	Name              string `json:"name,omitempty"`
	SessionIssuerName string `json:"sessionIssuerName,omitempty"`
	Identifier        string `json:"identifier,omitempty"`
	PrincipalID       string `json:"principalId,omitempty"`
	AccountID         string `json:"accountId"`
}

// ChangeEvent is one external change notification. It is transient: consumed
// once, never persisted verbatim.
type ChangeEvent struct {
	ExternalRef string        `json:"externalRef"`
	Kind        string        `json:"eventKind"`
	Actor       ActorIdentity `json:"actorIdentity"`
	SourceIP    string        `json:"sourceIp"`
	UserAgent   string        `json:"userAgent"`
	Region      string        `json:"region"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ConsoleChange is the richer sibling of an audit entry, keyed by the external
// reference, for changes made outside the portal. Its retention policy is
// independent from the portal audit trail's.
type ConsoleChange struct {
	ExternalRef string    `json:"externalRef"`
	Timestamp   time.Time `json:"timestamp"`
	SecretName  string    `json:"secretName"`
	Application string    `json:"application"`
	Environment string    `json:"environment"`
	ActorID     string    `json:"userId"`
	ActorType   string    `json:"userType"`
	Action      string    `json:"action"`
	Kind        string    `json:"eventName"`
	IP          string    `json:"ipAddress"`
	UserAgent   string    `json:"userAgent"`
	Region      string    `json:"region"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
