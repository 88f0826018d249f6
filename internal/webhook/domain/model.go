package domain

import (
	"context"
	"net/http"
	"time"
)

const (
	ProviderCard   = "card"
	ProviderOnramp = "onramp"
)

// Signal kinds produced by provider adapters after normalization.
const (
	SignalCaptureSucceeded = "capture_succeeded"
	SignalCaptureFailed    = "capture_failed"
	SignalRefunded         = "refunded"
	SignalSessionCompleted = "session_completed"
)

// Correlation says which local entity the provider reference points at.
const (
	CorrelationIntent = "intent"
	CorrelationCart   = "cart"
)

// FailureDetail carries the provider-reported reason for a failed capture.
type FailureDetail struct {
	Message     string
	Code        string
	DeclineCode string
}

// PaymentSignal is the provider-neutral form every webhook payload is reduced
// to before reconciliation. ExternalRef is interpreted per Correlation: an
// intent reference matches payment_collections.external_ref, a cart reference
// is the cart id the provider echoed back.
type PaymentSignal struct {
	Provider    string
	EventID     string
	EventType   string
	Kind        string
	Correlation string
	ExternalRef string
	AmountMinor int64
	Currency    string
	Failure     *FailureDetail
	OccurredAt  time.Time
}

// Adapter authenticates and normalizes payloads for one provider. Verify runs
// over the raw body before any parsing. EventID extracts the delivery
// identity cheaply so the dedup claim can happen before Parse, which may call
// out to the provider.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	EventID(ctx context.Context, payload []byte) (string, error)
	Parse(ctx context.Context, payload []byte) (*PaymentSignal, error)
}

// Ingest outcomes reported back to the HTTP layer.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

type IngestResult struct {
	Outcome string
	EventID string
}

// Service ingests one webhook delivery end to end: verify, parse,
// deduplicate, reconcile.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*IngestResult, error)
}
