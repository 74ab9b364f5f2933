// Package statestore persists per-role devbox pointers: the id and derived
// URL of the canonical devbox for a role, plus the blueprint id it was built
// from. The pointer is advisory; callers always re-validate against the
// provider before trusting it.
package statestore

import (
	"fmt"
	"strings"
)

// Store is a per-role pointer store. Lookups for roles that were never saved
// return an empty string with a nil error.
type Store interface {
	// Get returns the saved devbox id for a role.
	Get(role string) (string, error)
	// Set saves the devbox id for a role.
	Set(role, id string) error
	// GetURL returns the saved public service URL for a role.
	GetURL(role string) (string, error)
	// SetURL saves the public service URL for a role.
	SetURL(role, url string) error
	// GetBlueprintID returns the saved blueprint id for a role.
	GetBlueprintID(role string) (string, error)
	// SetBlueprintID saves the blueprint id for a role.
	SetBlueprintID(role, id string) error
}

// DerivedURL builds the public service URL the provider exposes for a devbox.
func DerivedURL(devboxID, domain string, port int) string {
	return fmt.Sprintf("https://%s.%s:%d", devboxID, domain, port)
}

const (
	suffixDevboxID    = "DEVBOX_ID"
	suffixDevboxURL   = "DEVBOX_URL"
	suffixBlueprintID = "BLUEPRINT_ID"
)

// envKey derives the KEY=VALUE key for a role and suffix, e.g.
// ("backend", "DEVBOX_ID") -> "BACKEND_DEVBOX_ID".
func envKey(role, suffix string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(role) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + "_" + suffix
}
