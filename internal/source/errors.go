// Package source wraps the external analytics and page-performance APIs behind
// a uniform "fetch or degrade" contract.
package source

import "errors"

// Sentinel errors for upstream sources.
var (
	// ErrAuth means the upstream rejected our credentials. It is always fatal.
	ErrAuth = errors.New("upstream credentials rejected")
	// ErrUpstream is a transient or unexpected upstream failure.
	ErrUpstream = errors.New("upstream request failed")
	// ErrQueryRejected means the upstream refused part of a query, typically a
	// dimension unavailable on the zone's plan. Always wrapped with ErrUpstream.
	ErrQueryRejected = errors.New("query rejected by upstream")
)

// Source names used in warnings, logs and metrics.
const (
	NameTraffic     = "traffic"
	NameTopPaths    = "top_paths"
	NameSecurity    = "security"
	NamePerformance = "performance"
)
