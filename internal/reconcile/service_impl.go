package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/payhook/internal/checkout/domain"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	obsmetrics "github.com/smallbiznis/payhook/internal/observability/metrics"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Checkout   checkoutdomain.Service
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service applies normalized payment signals to the order store. Every
// transition is idempotent so a redelivered signal converges instead of
// double-applying. Signals whose local entity is missing are logged and
// dropped, except cart completions, which are sale-completing and must
// surface their failures.
type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	checkout   checkoutdomain.Service
	window     time.Duration
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("reconcile"),
		clock:      p.Clock,
		checkout:   p.Checkout,
		window:     p.Cfg.AutoCaptureWindow,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ProcessSignal(ctx context.Context, signal *webhookdomain.PaymentSignal) error {
	if signal == nil {
		return webhookdomain.ErrInvalidEvent
	}

	var err error
	switch signal.Kind {
	case webhookdomain.SignalCaptureSucceeded:
		err = s.applyCapture(ctx, signal)
	case webhookdomain.SignalCaptureFailed:
		err = s.applyFailure(ctx, signal)
	case webhookdomain.SignalRefunded:
		err = s.applyRefund(ctx, signal)
	case webhookdomain.SignalSessionCompleted:
		s.log.Info("provider session completed",
			zap.String("provider", signal.Provider),
			zap.String("external_ref", signal.ExternalRef),
		)
	default:
		s.log.Warn("unknown signal kind dropped", zap.String("kind", signal.Kind))
	}

	s.recordSignal(ctx, signal.Kind, err)
	return err
}

func (s *Service) applyCapture(ctx context.Context, signal *webhookdomain.PaymentSignal) error {
	switch signal.Correlation {
	case webhookdomain.CorrelationIntent:
		return s.captureByIntent(ctx, signal)
	case webhookdomain.CorrelationCart:
		return s.captureByCart(ctx, signal)
	default:
		return webhookdomain.ErrInvalidEvent
	}
}

func (s *Service) captureByIntent(ctx context.Context, signal *webhookdomain.PaymentSignal) error {
	collection, err := s.checkout.FindCollectionByExternalRef(ctx, signal.ExternalRef)
	if err != nil {
		return err
	}
	if collection == nil {
		s.logMissing(signal, "no payment collection for reference")
		return nil
	}

	payments, err := s.checkout.ListPaymentsByCollection(ctx, collection.ID)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		s.logMissing(signal, "collection has no payments")
		return nil
	}

	now := s.clock.Now().UTC()
	for _, payment := range payments {
		if err := s.checkout.CapturePayment(ctx, payment.ID, now); err != nil {
			return err
		}
	}

	order, err := s.checkout.FindOrderByCollection(ctx, collection.ID)
	if err != nil {
		return err
	}
	if order != nil {
		if err := s.checkout.SetOrderPaymentStatus(ctx, order.ID, checkoutdomain.PaymentStatusCaptured); err != nil {
			return err
		}
	}

	s.log.Info("capture reconciled",
		zap.String("provider", signal.Provider),
		zap.String("external_ref", signal.ExternalRef),
		zap.Int("payments", len(payments)),
	)
	return nil
}

// captureByCart completes the cart the provider echoed back. This transition
// creates the sale, so unlike intent captures its failures propagate to the
// caller as ErrReconcileFailed and the delivery stays retryable.
func (s *Service) captureByCart(ctx context.Context, signal *webhookdomain.PaymentSignal) error {
	cartID, err := snowflake.ParseString(signal.ExternalRef)
	if err != nil {
		return fmt.Errorf("%w: bad cart reference %q", webhookdomain.ErrReconcileFailed, signal.ExternalRef)
	}

	order, err := s.checkout.CompleteCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, checkoutdomain.ErrCartNotFound) {
			return fmt.Errorf("%w: cart %s", webhookdomain.ErrReconcileFailed, signal.ExternalRef)
		}
		return err
	}

	if err := s.checkout.SetOrderPaymentStatus(ctx, order.ID, checkoutdomain.PaymentStatusCaptured); err != nil {
		return err
	}

	s.log.Info("cart completion reconciled",
		zap.String("provider", signal.Provider),
		zap.String("cart_id", signal.ExternalRef),
		zap.String("order_id", order.ID.String()),
	)

	return s.AutoCapture(ctx)
}

func (s *Service) applyFailure(ctx context.Context, signal *webhookdomain.PaymentSignal) error {
	collection, err := s.checkout.FindCollectionByExternalRef(ctx, signal.ExternalRef)
	if err != nil {
		return err
	}
	if collection == nil {
		s.logMissing(signal, "no payment collection for failed capture")
		return nil
	}

	detail := checkoutdomain.FailureDetail{Message: "capture failed"}
	if signal.Failure != nil {
		detail = checkoutdomain.FailureDetail{
			Message:     signal.Failure.Message,
			Code:        signal.Failure.Code,
			DeclineCode: signal.Failure.DeclineCode,
		}
	}

	payments, err := s.checkout.ListPaymentsByCollection(ctx, collection.ID)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if payment.CapturedAt != nil {
			continue
		}
		if err := s.checkout.AttachPaymentFailure(ctx, payment.ID, detail); err != nil {
			return err
		}
	}

	order, err := s.checkout.FindOrderByCollection(ctx, collection.ID)
	if err != nil {
		return err
	}
	if order != nil {
		if err := s.checkout.SetOrderPaymentStatus(ctx, order.ID, checkoutdomain.PaymentStatusFailed); err != nil {
			return err
		}
	}

	s.log.Warn("capture failure reconciled",
		zap.String("provider", signal.Provider),
		zap.String("external_ref", signal.ExternalRef),
		zap.String("failure_message", detail.Message),
	)
	return nil
}

func (s *Service) applyRefund(ctx context.Context, signal *webhookdomain.PaymentSignal) error {
	collection, err := s.checkout.FindCollectionByExternalRef(ctx, signal.ExternalRef)
	if err != nil {
		return err
	}
	if collection == nil {
		s.logMissing(signal, "no payment collection for refund")
		return nil
	}

	refundedAt := signal.OccurredAt
	if refundedAt.IsZero() {
		refundedAt = s.clock.Now()
	}

	payments, err := s.checkout.ListPaymentsByCollection(ctx, collection.ID)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if err := s.checkout.AttachPaymentRefund(ctx, payment.ID, signal.AmountMinor, refundedAt); err != nil {
			return err
		}
	}

	order, err := s.checkout.FindOrderByCollection(ctx, collection.ID)
	if err != nil {
		return err
	}
	if order != nil {
		if err := s.checkout.MarkOrderRefunded(ctx, order.ID); err != nil {
			return err
		}
	}

	s.log.Info("refund reconciled",
		zap.String("provider", signal.Provider),
		zap.String("external_ref", signal.ExternalRef),
		zap.Int64("refund_amount", signal.AmountMinor),
	)
	return nil
}

// AutoCapture captures card payments that were authorized just before an
// order was placed but whose capture event has not arrived yet. Only
// payments created within the trailing window are touched.
func (s *Service) AutoCapture(ctx context.Context) error {
	window := s.window
	if window <= 0 {
		window = 60 * time.Second
	}

	now := s.clock.Now().UTC()
	payments, err := s.checkout.ListUncapturedSince(ctx, webhookdomain.ProviderCard, now.Add(-window))
	if err != nil {
		return err
	}

	var captured int64
	for _, payment := range payments {
		if err := s.checkout.CapturePayment(ctx, payment.ID, now); err != nil {
			return err
		}
		captured++
	}

	if captured > 0 {
		s.log.Info("auto-captured card payments", zap.Int64("count", captured))
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordAutoCapture(ctx, captured)
	}
	return nil
}

func (s *Service) logMissing(signal *webhookdomain.PaymentSignal, msg string) {
	s.log.Info(msg,
		zap.String("provider", signal.Provider),
		zap.String("event_type", signal.EventType),
		zap.String("external_ref", signal.ExternalRef),
	)
}

func (s *Service) recordSignal(ctx context.Context, kind string, err error) {
	if s.obsMetrics == nil {
		return
	}
	result := "applied"
	if err != nil {
		result = "error"
	}
	s.obsMetrics.RecordReconcileSignal(ctx, kind, result)
}
