package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// FailureDetail is provider-reported failure metadata attached to a payment.
type FailureDetail struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
}

// Service is the order/payment system of record. Reconciliation drives it
// through idempotent, single-entity mutations; it never spans providers and
// the store in one transaction.
type Service interface {
	GetCart(ctx context.Context, cartID snowflake.ID) (*Cart, error)

	// CompleteCart runs the cart -> order transition. Completing an already
	// completed cart returns the existing order.
	CompleteCart(ctx context.Context, cartID snowflake.ID) (*Order, error)

	FindCollectionByExternalRef(ctx context.Context, externalRef string) (*PaymentCollection, error)
	FindOrderByCollection(ctx context.Context, collectionID snowflake.ID) (*Order, error)
	ListPaymentsByCollection(ctx context.Context, collectionID snowflake.ID) ([]Payment, error)

	// CapturePayment marks a payment captured. Capturing an already captured
	// payment is a no-op.
	CapturePayment(ctx context.Context, paymentID snowflake.ID, capturedAt time.Time) error

	AttachPaymentFailure(ctx context.Context, paymentID snowflake.ID, detail FailureDetail) error
	AttachPaymentRefund(ctx context.Context, paymentID snowflake.ID, amountMinor int64, refundedAt time.Time) error

	SetOrderPaymentStatus(ctx context.Context, orderID snowflake.ID, paymentStatus string) error
	MarkOrderRefunded(ctx context.Context, orderID snowflake.ID) error

	// ListUncapturedSince returns payments for the provider that are not yet
	// captured and were created at or after the cutoff, oldest first.
	ListUncapturedSince(ctx context.Context, provider string, cutoff time.Time) ([]Payment, error)
}
