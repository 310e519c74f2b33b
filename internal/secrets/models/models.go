package models

import (
	"time"

	dErrors "secretsportal/pkg/domain-errors"
)

// Environment is the deployment tier a secret belongs to. Prod is the highest
// sensitivity tier; direct external changes to Prod secrets page someone.
type Environment string

const (
	EnvNonProd Environment = "NP"
	EnvPreProd Environment = "PP"
	EnvProd    Environment = "Prod"
)

// ParseEnvironment validates a raw environment string.
func ParseEnvironment(raw string) (Environment, error) {
	switch Environment(raw) {
	case EnvNonProd, EnvPreProd, EnvProd:
		return Environment(raw), nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "environment must be NP, PP, or Prod, got %q", raw)
	}
}

// ValidRotationPeriods are the only rotation policies the portal accepts.
var ValidRotationPeriods = []int{45, 60, 90}

// ValidateRotationPeriod checks a rotation period in days against policy.
func ValidateRotationPeriod(days int) error {
	for _, p := range ValidRotationPeriods {
		if days == p {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeValidation, "rotation period must be 45, 60, or 90 days, got %d", days)
}

// SecretMetadata is the portal-known record describing one externally-vaulted
// secret. The value itself never passes through this type; ExternalRef is the
// vault's own identifier and is how external change events correlate back to
// a record.
type SecretMetadata struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	ExternalRef        string            `json:"externalRef"`
	Application        string            `json:"application"`
	Environment        Environment       `json:"environment"`
	RotationPeriodDays int               `json:"rotationPeriodDays"`
	LastModified       time.Time         `json:"lastModified"`
	NotificationSent   bool              `json:"notificationSent"`
	LastNotificationAt *time.Time        `json:"lastNotificationAt,omitempty"`
	Region             string            `json:"region"`
	Tags               map[string]string `json:"tags,omitempty"`
	CreatedBy          string            `json:"createdBy"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// DaysSinceRotation computes whole days elapsed since the last value update,
// truncating rather than rounding.
func (m SecretMetadata) DaysSinceRotation(now time.Time) int {
	return int(now.Sub(m.LastModified) / (24 * time.Hour))
}

// MetadataUpdate is a partial update. Nil fields are left untouched. Updates
// are existence-conditioned, not version-conditioned: concurrent writers race
// last-write-wins.
type MetadataUpdate struct {
	Name               *string
	RotationPeriodDays *int
	LastModified       *time.Time
	NotificationSent   *bool
	LastNotificationAt *time.Time
	Tags               map[string]string
}
