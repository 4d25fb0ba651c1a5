package fantasy

import "errors"

var (
	// ErrNotFound indicates the requested league or team does not exist.
	ErrNotFound = errors.New("fantasy.not_found")
	// ErrPermissionDenied indicates the connected account cannot see the resource.
	ErrPermissionDenied = errors.New("fantasy.permission_denied")
	// ErrRateLimited indicates provider throttling; the caller should back off.
	ErrRateLimited = errors.New("fantasy.rate_limited")
	// ErrUpstream covers every other provider failure, including malformed payloads.
	ErrUpstream = errors.New("fantasy.upstream_error")

	// errAmbiguousKey is the internal marker for the provider's 400/404
	// conflation of "bad key" and "no permission". The service resolves it
	// with a secondary probe before surfacing a classified error.
	errAmbiguousKey = errors.New("fantasy.ambiguous_key")
)
