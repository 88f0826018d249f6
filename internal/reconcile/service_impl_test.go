package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/payhook/internal/checkout/domain"
	checkoutrepo "github.com/smallbiznis/payhook/internal/checkout/repository"
	checkoutservice "github.com/smallbiznis/payhook/internal/checkout/service"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/reconcile"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	fake     *clock.FakeClock
	checkout checkoutdomain.Service
	svc      *reconcile.Service
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	checkoutSvc := checkoutservice.NewService(checkoutservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  checkoutrepo.Provide(),
	})

	svc := reconcile.NewService(reconcile.Params{
		Log:      zap.NewNop(),
		Clock:    fake,
		Checkout: checkoutSvc,
		Cfg:      config.Config{AutoCaptureWindow: 60 * time.Second},
	})

	return &fixture{db: db, node: node, fake: fake, checkout: checkoutSvc, svc: svc}
}

func TestCaptureByIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20)

	cartID := f.node.Generate()
	collectionID := f.node.Generate()
	paymentID := f.node.Generate()
	seedCart(t, f.db, cartID, 2000, f.fake.Now())
	seedCollection(t, f.db, collectionID, cartID, "pi_1", f.fake.Now())
	seedPayment(t, f.db, paymentID, collectionID, "card", 2000, f.fake.Now())

	order, err := f.checkout.CompleteCart(ctx, cartID)
	if err != nil {
		t.Fatalf("complete cart: %v", err)
	}

	err = f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderCard,
		EventID:     "evt_1",
		Kind:        webhookdomain.SignalCaptureSucceeded,
		Correlation: webhookdomain.CorrelationIntent,
		ExternalRef: "pi_1",
		AmountMinor: 2000,
	})
	if err != nil {
		t.Fatalf("process signal: %v", err)
	}

	payments, _ := f.checkout.ListPaymentsByCollection(ctx, collectionID)
	if payments[0].CapturedAt == nil {
		t.Fatal("payment not captured")
	}
	got, _ := f.checkout.FindOrderByCollection(ctx, collectionID)
	if got == nil || got.ID != order.ID || got.PaymentStatus != checkoutdomain.PaymentStatusCaptured {
		t.Fatalf("order = %+v", got)
	}
}

func TestCaptureByIntentUnknownReferenceIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 21)

	err := f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderCard,
		Kind:        webhookdomain.SignalCaptureSucceeded,
		Correlation: webhookdomain.CorrelationIntent,
		ExternalRef: "pi_unknown",
	})
	if err != nil {
		t.Fatalf("unknown reference should be dropped, got %v", err)
	}
}

func TestCaptureByCartCompletesCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 22)

	cartID := f.node.Generate()
	seedCart(t, f.db, cartID, 5000, f.fake.Now())

	err := f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderOnramp,
		EventID:     "evt_2",
		Kind:        webhookdomain.SignalCaptureSucceeded,
		Correlation: webhookdomain.CorrelationCart,
		ExternalRef: cartID.String(),
	})
	if err != nil {
		t.Fatalf("process signal: %v", err)
	}

	cart, err := f.checkout.GetCart(ctx, cartID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if cart.CompletedAt == nil {
		t.Fatal("cart not completed")
	}
}

func TestCaptureByCartUnknownCartSurfacesError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 23)

	// Cart completion creates the sale; its failures must stay retryable,
	// so they carry ErrReconcileFailed rather than a validation error.
	err := f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderOnramp,
		Kind:        webhookdomain.SignalCaptureSucceeded,
		Correlation: webhookdomain.CorrelationCart,
		ExternalRef: f.node.Generate().String(),
	})
	if err == nil {
		t.Fatal("unknown cart must surface an error")
	}
	if !errors.Is(err, webhookdomain.ErrReconcileFailed) {
		t.Fatalf("err = %v, want ErrReconcileFailed", err)
	}

	err = f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderOnramp,
		Kind:        webhookdomain.SignalCaptureSucceeded,
		Correlation: webhookdomain.CorrelationCart,
		ExternalRef: "not-a-cart-id",
	})
	if !errors.Is(err, webhookdomain.ErrReconcileFailed) {
		t.Fatalf("bad reference err = %v, want ErrReconcileFailed", err)
	}
}

func TestRefundAttachesMetadataAndMarksOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 24)

	cartID := f.node.Generate()
	collectionID := f.node.Generate()
	paymentID := f.node.Generate()
	seedCart(t, f.db, cartID, 2000, f.fake.Now())
	seedCollection(t, f.db, collectionID, cartID, "pi_2", f.fake.Now())
	seedPayment(t, f.db, paymentID, collectionID, "card", 2000, f.fake.Now())
	if _, err := f.checkout.CompleteCart(ctx, cartID); err != nil {
		t.Fatalf("complete cart: %v", err)
	}

	err := f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderCard,
		Kind:        webhookdomain.SignalRefunded,
		Correlation: webhookdomain.CorrelationIntent,
		ExternalRef: "pi_2",
		AmountMinor: 1050,
		OccurredAt:  f.fake.Now(),
	})
	if err != nil {
		t.Fatalf("process signal: %v", err)
	}

	payments, _ := f.checkout.ListPaymentsByCollection(ctx, collectionID)
	if payments[0].Metadata["refund_amount_display"] != "10.50" {
		t.Fatalf("metadata = %v", payments[0].Metadata)
	}
	order, _ := f.checkout.FindOrderByCollection(ctx, collectionID)
	if order.Status != checkoutdomain.OrderStatusRefunded || order.PaymentStatus != checkoutdomain.PaymentStatusRefunded {
		t.Fatalf("order = %+v", order)
	}
}

func TestCaptureFailedAttachesDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25)

	cartID := f.node.Generate()
	collectionID := f.node.Generate()
	paymentID := f.node.Generate()
	seedCart(t, f.db, cartID, 2000, f.fake.Now())
	seedCollection(t, f.db, collectionID, cartID, "pi_3", f.fake.Now())
	seedPayment(t, f.db, paymentID, collectionID, "card", 2000, f.fake.Now())

	err := f.svc.ProcessSignal(ctx, &webhookdomain.PaymentSignal{
		Provider:    webhookdomain.ProviderCard,
		Kind:        webhookdomain.SignalCaptureFailed,
		Correlation: webhookdomain.CorrelationIntent,
		ExternalRef: "pi_3",
		Failure:     &webhookdomain.FailureDetail{Message: "declined", DeclineCode: "do_not_honor"},
	})
	if err != nil {
		t.Fatalf("process signal: %v", err)
	}

	payments, _ := f.checkout.ListPaymentsByCollection(ctx, collectionID)
	if payments[0].Metadata["failure_decline_code"] != "do_not_honor" {
		t.Fatalf("metadata = %v", payments[0].Metadata)
	}
}

func TestAutoCaptureRespectsWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 26)

	cartID := f.node.Generate()
	collectionID := f.node.Generate()
	recent := f.node.Generate()
	stale := f.node.Generate()
	seedCart(t, f.db, cartID, 2000, f.fake.Now())
	seedCollection(t, f.db, collectionID, cartID, "pi_4", f.fake.Now())
	seedPayment(t, f.db, recent, collectionID, "card", 1000, f.fake.Now().Add(-30*time.Second))
	seedPayment(t, f.db, stale, collectionID, "card", 1000, f.fake.Now().Add(-2*time.Minute))

	if err := f.svc.AutoCapture(ctx); err != nil {
		t.Fatalf("auto capture: %v", err)
	}

	payments, _ := f.checkout.ListPaymentsByCollection(ctx, collectionID)
	for _, payment := range payments {
		switch payment.ID {
		case recent:
			if payment.CapturedAt == nil {
				t.Fatal("payment inside window not captured")
			}
		case stale:
			if payment.CapturedAt != nil {
				t.Fatal("payment outside window captured")
			}
		}
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE carts (
			id BIGINT PRIMARY KEY,
			currency TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			email TEXT,
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			cart_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payment_collections (
			id BIGINT PRIMARY KEY,
			cart_id BIGINT NOT NULL,
			order_id BIGINT,
			external_ref TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			collection_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			captured_at TIMESTAMP,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func seedCart(t *testing.T, db *gorm.DB, id snowflake.ID, total int64, now time.Time) {
	t.Helper()
	if err := db.Exec(
		"INSERT INTO carts (id, currency, total_amount, email, created_at) VALUES (?, ?, ?, ?, ?)",
		id, "USD", total, "buyer@example.com", now,
	).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
}

func seedCollection(t *testing.T, db *gorm.DB, id, cartID snowflake.ID, externalRef string, now time.Time) {
	t.Helper()
	if err := db.Exec(
		"INSERT INTO payment_collections (id, cart_id, external_ref, created_at) VALUES (?, ?, ?, ?)",
		id, cartID, externalRef, now,
	).Error; err != nil {
		t.Fatalf("seed collection: %v", err)
	}
}

func seedPayment(t *testing.T, db *gorm.DB, id, collectionID snowflake.ID, provider string, amount int64, createdAt time.Time) {
	t.Helper()
	if err := db.Exec(
		"INSERT INTO payments (id, collection_id, provider, amount, currency, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, collectionID, provider, amount, "USD", createdAt,
	).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}
