package onramp

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

const SignatureHeader = "X-Signature"

type Config struct {
	Secret string
}

// Adapter handles callbacks from the crypto on-ramp. The on-ramp echoes back
// the cart id it was handed at signing time as merchant_transaction_id, so
// signals correlate on the cart rather than a payment intent.
type Adapter struct {
	secret string
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{secret: strings.TrimSpace(cfg.Secret)}
}

func (a *Adapter) Provider() string {
	return domain.ProviderOnramp
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.secret == "" {
		return domain.ErrMissingSecret
	}

	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(a.secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type onrampEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	CreatedAt int64       `json:"created_at"`
	Data      onrampOrder `json:"data"`
}

type onrampOrder struct {
	MerchantTransactionID string `json:"merchant_transaction_id"`
	Status                string `json:"status"`
	FiatAmount            string `json:"fiat_amount"`
	FiatCurrency          string `json:"fiat_currency"`
}

// Statuses that mean the on-ramp collected the funds. Anything else is an
// intermediate state and is ignored.
func isPaidStatus(status string) bool {
	switch status {
	case "paid", "completed", "success":
		return true
	}
	return false
}

// dedupKey is the delivery identity: the provider's event id when present,
// otherwise cart id plus status. Bodies that carry no actionable order are
// ignored rather than rejected; the on-ramp endpoint answers 200 or 5xx only.
func (e onrampEvent) dedupKey() (string, error) {
	cartID := strings.TrimSpace(e.Data.MerchantTransactionID)
	if cartID == "" {
		return "", domain.ErrEventIgnored
	}

	status := strings.ToLower(strings.TrimSpace(e.Data.Status))
	if !isPaidStatus(status) {
		return "", domain.ErrEventIgnored
	}

	if id := strings.TrimSpace(e.ID); id != "" {
		return id, nil
	}
	return cartID + ":" + status, nil
}

func (a *Adapter) EventID(ctx context.Context, payload []byte) (string, error) {
	var event onrampEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", domain.ErrEventIgnored
	}
	return event.dedupKey()
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentSignal, error) {
	var event onrampEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrEventIgnored
	}

	eventID, err := event.dedupKey()
	if err != nil {
		return nil, err
	}
	cartID := strings.TrimSpace(event.Data.MerchantTransactionID)
	status := strings.ToLower(strings.TrimSpace(event.Data.Status))

	occurredAt := time.Now().UTC()
	if event.CreatedAt > 0 {
		occurredAt = time.Unix(event.CreatedAt, 0).UTC()
	}

	return &domain.PaymentSignal{
		Provider:    domain.ProviderOnramp,
		EventID:     eventID,
		EventType:   status,
		Kind:        domain.SignalCaptureSucceeded,
		Correlation: domain.CorrelationCart,
		ExternalRef: cartID,
		Currency:    strings.ToUpper(strings.TrimSpace(event.Data.FiatCurrency)),
		OccurredAt:  occurredAt,
	}, nil
}
