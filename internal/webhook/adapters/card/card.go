package card

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

const SignatureHeader = "Card-Signature"

// Intent is the provider-side payment intent as returned by the lookup API.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// IntentResolver fetches a payment intent from the card processor. Charge
// events only carry the intent id, so captures triggered by them need one
// extra read to normalize.
type IntentResolver interface {
	ResolveIntent(ctx context.Context, intentID string) (*Intent, error)
}

type Config struct {
	WebhookSecret string
	Resolver      IntentResolver
}

type Adapter struct {
	secret   string
	resolver IntentResolver
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		secret:   strings.TrimSpace(cfg.WebhookSecret),
		resolver: cfg.Resolver,
	}
}

func (a *Adapter) Provider() string {
	return domain.ProviderCard
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.secret == "" {
		return domain.ErrMissingSecret
	}

	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			timestamp = pair[1]
		case "v1":
			signatures = append(signatures, pair[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

// EventID pulls the event id out without normalizing the rest of the payload,
// so duplicate deliveries can short-circuit before any intent lookup runs.
func (a *Adapter) EventID(ctx context.Context, payload []byte) (string, error) {
	var event cardEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", domain.ErrInvalidPayload
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return "", domain.ErrInvalidEvent
	}
	return eventID, nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentSignal, error) {
	var event cardEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parseIntentSucceeded(event)
	case "payment_intent.payment_failed":
		return a.parseIntentFailed(event)
	case "charge.succeeded":
		return a.parseChargeSucceeded(ctx, event)
	case "charge.refunded":
		return a.parseChargeRefunded(event)
	case "checkout.session.completed":
		return a.parseSessionCompleted(event)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type cardEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    cardEventData `json:"data"`
}

type cardEventData struct {
	Object json.RawMessage `json:"object"`
}

type cardIntent struct {
	ID               string         `json:"id"`
	Amount           int64          `json:"amount"`
	AmountReceived   int64          `json:"amount_received"`
	Currency         string         `json:"currency"`
	Created          int64          `json:"created"`
	LastPaymentError *cardLastError `json:"last_payment_error"`
}

type cardLastError struct {
	Message     string `json:"message"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
}

type cardCharge struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Created        int64  `json:"created"`
}

type cardSession struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
}

func (a *Adapter) parseIntentSucceeded(event cardEvent) (*domain.PaymentSignal, error) {
	var intent cardIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &domain.PaymentSignal{
		Provider:    domain.ProviderCard,
		EventID:     event.ID,
		EventType:   event.Type,
		Kind:        domain.SignalCaptureSucceeded,
		Correlation: domain.CorrelationIntent,
		ExternalRef: intent.ID,
		AmountMinor: amount,
		Currency:    strings.ToUpper(strings.TrimSpace(intent.Currency)),
		OccurredAt:  occurredAt(intent.Created, event.Created),
	}, nil
}

func (a *Adapter) parseIntentFailed(event cardEvent) (*domain.PaymentSignal, error) {
	var intent cardIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	var failure *domain.FailureDetail
	if intent.LastPaymentError != nil {
		failure = &domain.FailureDetail{
			Message:     intent.LastPaymentError.Message,
			Code:        intent.LastPaymentError.Code,
			DeclineCode: intent.LastPaymentError.DeclineCode,
		}
	}

	return &domain.PaymentSignal{
		Provider:    domain.ProviderCard,
		EventID:     event.ID,
		EventType:   event.Type,
		Kind:        domain.SignalCaptureFailed,
		Correlation: domain.CorrelationIntent,
		ExternalRef: intent.ID,
		AmountMinor: intent.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(intent.Currency)),
		Failure:     failure,
		OccurredAt:  occurredAt(intent.Created, event.Created),
	}, nil
}

// parseChargeSucceeded resolves the owning intent so the signal always
// correlates on the intent id regardless of which event form the provider
// delivered.
func (a *Adapter) parseChargeSucceeded(ctx context.Context, event cardEvent) (*domain.PaymentSignal, error) {
	var charge cardCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	intentID := strings.TrimSpace(charge.PaymentIntent)
	if intentID == "" {
		return nil, domain.ErrEventIgnored
	}
	if a.resolver == nil {
		return nil, domain.ErrLookupUnavailable
	}

	intent, err := a.resolver.ResolveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	amount := intent.Amount
	if amount <= 0 {
		amount = charge.Amount
	}
	currency := intent.Currency
	if currency == "" {
		currency = charge.Currency
	}

	return &domain.PaymentSignal{
		Provider:    domain.ProviderCard,
		EventID:     event.ID,
		EventType:   event.Type,
		Kind:        domain.SignalCaptureSucceeded,
		Correlation: domain.CorrelationIntent,
		ExternalRef: intent.ID,
		AmountMinor: amount,
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
		OccurredAt:  occurredAt(charge.Created, event.Created),
	}, nil
}

func (a *Adapter) parseChargeRefunded(event cardEvent) (*domain.PaymentSignal, error) {
	var charge cardCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	intentID := strings.TrimSpace(charge.PaymentIntent)
	if intentID == "" {
		return nil, domain.ErrEventIgnored
	}

	return &domain.PaymentSignal{
		Provider:    domain.ProviderCard,
		EventID:     event.ID,
		EventType:   event.Type,
		Kind:        domain.SignalRefunded,
		Correlation: domain.CorrelationIntent,
		ExternalRef: intentID,
		AmountMinor: charge.AmountRefunded,
		Currency:    strings.ToUpper(strings.TrimSpace(charge.Currency)),
		OccurredAt:  occurredAt(charge.Created, event.Created),
	}, nil
}

func (a *Adapter) parseSessionCompleted(event cardEvent) (*domain.PaymentSignal, error) {
	var session cardSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.PaymentSignal{
		Provider:    domain.ProviderCard,
		EventID:     event.ID,
		EventType:   event.Type,
		Kind:        domain.SignalSessionCompleted,
		Correlation: domain.CorrelationIntent,
		ExternalRef: session.ID,
		OccurredAt:  occurredAt(session.Created, event.Created),
	}, nil
}

func occurredAt(primary, fallback int64) time.Time {
	if primary > 0 {
		return time.Unix(primary, 0).UTC()
	}
	if fallback > 0 {
		return time.Unix(fallback, 0).UTC()
	}
	return time.Now().UTC()
}
