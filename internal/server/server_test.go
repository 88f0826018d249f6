package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/payhook/internal/checkout/domain"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/onramp"
	"github.com/smallbiznis/payhook/internal/swap"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"go.uber.org/zap"
)

type stubWebhookService struct {
	result *webhookdomain.IngestResult
	err    error
}

func (s *stubWebhookService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*webhookdomain.IngestResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubCheckout struct {
	checkoutdomain.Service

	cart *checkoutdomain.Cart
}

func (s *stubCheckout) GetCart(ctx context.Context, cartID snowflake.ID) (*checkoutdomain.Cart, error) {
	if s.cart == nil || s.cart.ID != cartID {
		return nil, checkoutdomain.ErrCartNotFound
	}
	return s.cart, nil
}

func newTestServer(t *testing.T, cfg config.Config, webhookSvc webhookdomain.Service, checkoutSvc checkoutdomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		WebhookSvc: webhookSvc,
		Signer: onramp.NewSigner(onramp.Params{
			Log:      zap.NewNop(),
			Cfg:      cfg,
			Checkout: checkoutSvc,
		}),
		SwapClient: swap.NewClient(swap.Params{
			Log: zap.NewNop(),
			Cfg: cfg,
		}),
	})
}

func TestCardWebhookResponses(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubWebhookService
		wantStatus int
		wantBody   string
	}{
		{
			name:       "processed",
			svc:        &stubWebhookService{result: &webhookdomain.IngestResult{Outcome: webhookdomain.OutcomeProcessed}},
			wantStatus: http.StatusOK,
			wantBody:   `"received":true`,
		},
		{
			name:       "duplicate tagged",
			svc:        &stubWebhookService{result: &webhookdomain.IngestResult{Outcome: webhookdomain.OutcomeDuplicate}},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"duplicate"`,
		},
		{
			name:       "bad signature",
			svc:        &stubWebhookService{err: webhookdomain.ErrInvalidSignature},
			wantStatus: http.StatusBadRequest,
			wantBody:   `"authentication_error"`,
		},
		{
			name:       "missing secret is server fault",
			svc:        &stubWebhookService{err: webhookdomain.ErrMissingSecret},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `"configuration_error"`,
		},
		{
			name:       "reconciliation failure",
			svc:        &stubWebhookService{err: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `"internal_error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, config.Config{}, tt.svc, &stubCheckout{})

			req := httptest.NewRequest(http.MethodPost, "/webhooks/card", strings.NewReader(`{"id":"evt_1"}`))
			rec := httptest.NewRecorder()
			srv.Engine().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %s, want substring %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOnrampWebhookReconcileFailureIsRetryable(t *testing.T) {
	svc := &stubWebhookService{err: fmt.Errorf("%w: cart 123", webhookdomain.ErrReconcileFailed)}
	srv := newTestServer(t, config.Config{}, svc, &stubCheckout{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/onramp", strings.NewReader(`{"data":{}}`))
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	// Never 4xx here: the provider must keep redelivering the sale.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (body %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"internal_error"`) {
		t.Fatalf("body = %s, want internal_error", rec.Body.String())
	}
}

func TestOnrampSign(t *testing.T) {
	node, err := snowflake.NewNode(50)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	cartID := node.Generate()

	cfg := config.Config{
		Onramp: config.OnrampConfig{
			Secret:        "mercury_secret",
			WidgetID:      "widget_1",
			WalletAddress: "0xABCDEF",
			PayoutAsset:   "USDT",
		},
	}
	checkoutSvc := &stubCheckout{cart: &checkoutdomain.Cart{
		ID:          cartID,
		Currency:    "usd",
		TotalAmount: 2000,
		CreatedAt:   time.Now().UTC(),
	}}
	srv := newTestServer(t, cfg, &stubWebhookService{}, checkoutSvc)

	t.Run("missing cart_id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/store/onramp/sign", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown cart", func(t *testing.T) {
		body := fmt.Sprintf(`{"cart_id":"%s"}`, node.Generate())
		req := httptest.NewRequest(http.MethodPost, "/store/onramp/sign", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("signs session with forwarded ip", func(t *testing.T) {
		body := fmt.Sprintf(`{"cart_id":"%s"}`, cartID)
		req := httptest.NewRequest(http.MethodPost, "/store/onramp/sign", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		got := rec.Body.String()
		for _, want := range []string{`"fiat_amount":"20.00"`, `"ip":"203.0.113.7"`, `"signature":"v2:`, `"currency":"USDT"`} {
			if !strings.Contains(got, want) {
				t.Fatalf("body = %s, want substring %s", got, want)
			}
		}
	})
}

func TestCreateExchange(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"amount below minimum"}`))
	}))
	defer upstream.Close()

	cfg := config.Config{Swap: config.SwapConfig{
		APIKey:        "swap_key",
		APIBaseURL:    upstream.URL,
		WalletAddress: "1WalletAddr",
	}}
	srv := newTestServer(t, cfg, &stubWebhookService{}, &stubCheckout{})

	t.Run("missing amount", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/store/swap/create-exchange", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/store/swap/create-exchange", strings.NewReader(`{"amount":"0"}`))
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("upstream status and body mirrored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/store/swap/create-exchange", strings.NewReader(`{"amount":"0.01"}`))
		rec := httptest.NewRecorder()
		srv.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		if rec.Body.String() != `{"error":"amount below minimum"}` {
			t.Fatalf("body = %s", rec.Body.String())
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		bare := newTestServer(t, config.Config{}, &stubWebhookService{}, &stubCheckout{})
		req := httptest.NewRequest(http.MethodPost, "/store/swap/create-exchange", strings.NewReader(`{"amount":"10"}`))
		rec := httptest.NewRecorder()
		bare.Engine().ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
	})
}
