package onramp_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/payhook/internal/webhook/adapters/onramp"
	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerify(t *testing.T) {
	secret := "onramp_secret"
	adapter := onramp.NewAdapter(onramp.Config{Secret: secret})
	payload := []byte(`{"data":{"merchant_transaction_id":"123","status":"paid"}}`)

	headers := http.Header{}
	headers.Set(onramp.SignatureHeader, signPayload(secret, payload))
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	bad := http.Header{}
	bad.Set(onramp.SignatureHeader, signPayload("other", payload))
	if err := adapter.Verify(context.Background(), payload, bad); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyWithoutSecretIsConfigError(t *testing.T) {
	adapter := onramp.NewAdapter(onramp.Config{})
	headers := http.Header{}
	headers.Set(onramp.SignatureHeader, "deadbeef")

	if err := adapter.Verify(context.Background(), []byte(`{}`), headers); !errors.Is(err, domain.ErrMissingSecret) {
		t.Fatalf("err = %v, want ErrMissingSecret", err)
	}
}

func TestParsePaidStatuses(t *testing.T) {
	adapter := onramp.NewAdapter(onramp.Config{Secret: "s"})

	for _, status := range []string{"paid", "completed", "success", "PAID"} {
		payload := []byte(`{"id":"evt_1","data":{"merchant_transaction_id":"451155654635163648","status":"` + status + `","fiat_currency":"usd"}}`)
		signal, err := adapter.Parse(context.Background(), payload)
		if err != nil {
			t.Fatalf("status %q: %v", status, err)
		}
		if signal.Kind != domain.SignalCaptureSucceeded {
			t.Fatalf("status %q kind = %q", status, signal.Kind)
		}
		if signal.Correlation != domain.CorrelationCart || signal.ExternalRef != "451155654635163648" {
			t.Fatalf("status %q correlation = %q/%q", status, signal.Correlation, signal.ExternalRef)
		}
	}
}

func TestParseIntermediateStatusIgnored(t *testing.T) {
	adapter := onramp.NewAdapter(onramp.Config{Secret: "s"})
	payload := []byte(`{"data":{"merchant_transaction_id":"123","status":"pending"}}`)

	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
}

func TestParseMissingTransactionIDIgnored(t *testing.T) {
	adapter := onramp.NewAdapter(onramp.Config{Secret: "s"})
	payload := []byte(`{"data":{"status":"paid"}}`)

	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
}

func TestParseEventIDFallback(t *testing.T) {
	adapter := onramp.NewAdapter(onramp.Config{Secret: "s"})
	payload := []byte(`{"data":{"merchant_transaction_id":"123","status":"paid"}}`)

	signal, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if signal.EventID != "123:paid" {
		t.Fatalf("event id = %q", signal.EventID)
	}

	id, err := adapter.EventID(context.Background(), payload)
	if err != nil {
		t.Fatalf("event id: %v", err)
	}
	if id != signal.EventID {
		t.Fatalf("EventID = %q, Parse = %q", id, signal.EventID)
	}
}

func TestParseMalformedBodyIgnored(t *testing.T) {
	adapter := onramp.NewAdapter(onramp.Config{Secret: "s"})

	// The on-ramp only accepts 200 or 5xx; a body that will never become
	// parseable is dropped as ignored instead of rejected.
	if _, err := adapter.Parse(context.Background(), []byte(`not-json`)); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}
	if _, err := adapter.EventID(context.Background(), []byte(`not-json`)); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("event id err = %v, want ErrEventIgnored", err)
	}
}
