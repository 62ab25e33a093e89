package domain

import "errors"

var (
	// ErrUnauthorized signals a 401/403 from the upstream API. Period-keyed
	// cache entries must be invalidated when it surfaces.
	ErrUnauthorized = errors.New("upstream unauthorized")
	// ErrNoCredential signals that no session credential could be resolved.
	ErrNoCredential = errors.New("no session credential")
	// ErrUpstreamUnavailable signals a transport-level upstream failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNoUsage signals that no usage information is available for the
	// account; callers degrade to an empty display.
	ErrNoUsage = errors.New("no usage available")
)
