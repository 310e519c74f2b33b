// Package permissions turns verified group memberships into application and
// environment capability grants. Resolution is pure and order-independent: the
// same set of group names always yields the same effective grants, regardless
// of the order the identity provider returns them in.
package permissions

import (
	"fmt"
	"strings"
)

// Level is the access level carried by a grant. Write implies read for
// decision purposes; it is never stored twice.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
)

// Wildcard matches any application or environment in a grant.
const Wildcard = "*"

// Grant is one (app, env, level) capability tuple.
type Grant struct {
	App   string `json:"app"`
	Env   string `json:"env"`
	Level Level  `json:"level"`
}

const (
	adminGroup        = "secrets-admin"
	developerSuffix   = "-developer"
	prodViewerSuffix  = "-prod-viewer"
	envNonProd        = "NP"
	envPreProd        = "PP"
	envProd           = "Prod"
)

// ResolveGrants maps group names to grants and unions the results. Group names
// that match no rule contribute nothing; resolution never fails.
func ResolveGrants(groups []string) []Grant {
	var grants []Grant
	for _, group := range groups {
		switch {
		case group == adminGroup:
			grants = append(grants, Grant{App: Wildcard, Env: Wildcard, Level: LevelWrite})
		case strings.HasSuffix(group, developerSuffix):
			// Developers get read/write to the non-prod tiers of their app.
			app := strings.TrimSuffix(group, developerSuffix)
			grants = append(grants,
				Grant{App: app, Env: envNonProd, Level: LevelWrite},
				Grant{App: app, Env: envPreProd, Level: LevelWrite},
			)
		case strings.HasSuffix(group, prodViewerSuffix):
			app := strings.TrimSuffix(group, prodViewerSuffix)
			grants = append(grants, Grant{App: app, Env: envProd, Level: LevelRead})
		}
	}
	return grants
}

// HasAccess reports whether the grant set permits the requested level on the
// given application and environment.
func HasAccess(grants []Grant, app, env string, level Level) bool {
	for _, g := range grants {
		appMatch := g.App == Wildcard || g.App == app
		envMatch := g.Env == Wildcard || g.Env == env
		levelMatch := g.Level == LevelWrite || level == LevelRead
		if appMatch && envMatch && levelMatch {
			return true
		}
	}
	return false
}

// FilterByAccess keeps the items whose application and environment the grant
// set can read. Item order is preserved.
func FilterByAccess[T any](grants []Grant, items []T, key func(T) (app, env string)) []T {
	readable := make([]T, 0, len(items))
	for _, item := range items {
		app, env := key(item)
		if HasAccess(grants, app, env, LevelRead) {
			readable = append(readable, item)
		}
	}
	return readable
}

// AccessDeniedError identifies exactly which capability was missing so the
// transport layer can report it without re-deriving anything.
type AccessDeniedError struct {
	App   string
	Env   string
	Level Level
}

func (e *AccessDeniedError) Error() string {
	if e.Level == LevelWrite {
		return fmt.Sprintf("write access denied to %s %s secrets", e.App, e.Env)
	}
	return fmt.Sprintf("access denied to %s %s secrets", e.App, e.Env)
}

// RequireAccess returns an AccessDeniedError when the grant set does not
// permit the requested level.
func RequireAccess(grants []Grant, app, env string, level Level) error {
	if !HasAccess(grants, app, env, level) {
		return &AccessDeniedError{App: app, Env: env, Level: level}
	}
	return nil
}
