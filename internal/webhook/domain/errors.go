package domain

import "errors"

var (
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrMissingSecret     = errors.New("webhook_secret_not_configured")
	ErrEventIgnored      = errors.New("event_ignored")
	ErrEventInFlight     = errors.New("event_in_flight")
	ErrLookupUnavailable = errors.New("provider_lookup_unavailable")
	ErrReconcileFailed   = errors.New("reconcile_failed")
)
