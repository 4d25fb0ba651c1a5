package tokenkit

import "errors"

var (
	// ErrNoToken indicates the user has never connected a provider account.
	ErrNoToken = errors.New("token_store.no_token")
	// ErrTokenNotFound indicates no token record exists for the user identifier.
	ErrTokenNotFound = errors.New("token_store.not_found")
	// ErrReauthorizationRequired indicates the refresh token is no longer honored and the user must re-run the connect flow.
	ErrReauthorizationRequired = errors.New("refresher.reauthorization_required")
	// ErrRefreshFailed indicates a transient provider failure; the stored pair is untouched and the caller may retry.
	ErrRefreshFailed = errors.New("refresher.refresh_failed")

	// ErrStateNotFound indicates the callback state was never issued or already consumed.
	ErrStateNotFound = errors.New("state_store.not_found")
	// ErrStateExpired indicates the callback state outlived its TTL before consumption.
	ErrStateExpired = errors.New("state_store.expired")

	// ErrCodeNotFound indicates no pending authorization code is staged for the user.
	ErrCodeNotFound = errors.New("code_store.not_found")
	// ErrCodeExpired indicates the staged authorization code outlived its TTL.
	ErrCodeExpired = errors.New("code_store.expired")
	// ErrCodeAlreadyStaged indicates a second code write for a user whose slot is already occupied.
	ErrCodeAlreadyStaged = errors.New("code_store.already_staged")

	// ErrProviderDenied indicates the provider redirected back with an error instead of a code.
	ErrProviderDenied = errors.New("authorizer.provider_denied")
	// ErrMissingParams indicates the callback arrived without a code or state parameter.
	ErrMissingParams = errors.New("authorizer.missing_params")
)
