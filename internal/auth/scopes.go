// Package auth defines the capability scopes callers present to the API and
// service layer. Identity itself is established upstream; this package only
// answers whether a caller may perform an operation.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Capability scopes recognized by the core.
const (
	ScopeItemsWrite        = "items:write"
	ScopeItemsMove         = "items:move"
	ScopeWorkflowProvision = "workflow:provision"
	ScopeWorkersWrite      = "workers:write"
	ScopeSchedulesWrite    = "schedules:write"
	ScopeSchedulesTrigger  = "schedules:trigger"
	ScopeRunsWrite         = "runs:write"
)

// ErrForbidden signals a missing capability.
var ErrForbidden = errors.New("forbidden")

// Capabilities is the set of scopes a caller holds.
type Capabilities []string

// ParseCapabilities splits a comma-separated scope list as presented in a
// request header. Empty entries are dropped.
func ParseCapabilities(raw string) Capabilities {
	if raw == "" {
		return nil
	}
	var caps Capabilities
	for _, part := range strings.Split(raw, ",") {
		if scope := strings.TrimSpace(part); scope != "" {
			caps = append(caps, scope)
		}
	}
	return caps
}

// Has reports whether the set contains the scope. The wildcard scope "*"
// grants everything.
func (c Capabilities) Has(scope string) bool {
	for _, s := range c {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Require returns ErrForbidden (wrapped with the scope name) when the set
// does not contain the scope.
func (c Capabilities) Require(scope string) error {
	if c.Has(scope) {
		return nil
	}
	return fmt.Errorf("capability %q: %w", scope, ErrForbidden)
}
