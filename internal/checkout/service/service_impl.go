package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/checkout/domain"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("checkout.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetCart(ctx context.Context, cartID snowflake.ID) (*domain.Cart, error) {
	cart, err := s.repo.FindCart(ctx, s.db, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, domain.ErrCartNotFound
	}
	return cart, nil
}

// CompleteCart turns a cart into an order inside one transaction. The cart is
// marked completed and every payment collection on it is linked to the new
// order. Completing a cart twice returns the order created the first time.
func (s *Service) CompleteCart(ctx context.Context, cartID snowflake.ID) (*domain.Order, error) {
	var result *domain.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.repo.FindCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if cart == nil {
			return domain.ErrCartNotFound
		}

		if cart.CompletedAt != nil {
			existing, err := s.repo.FindOrderByCart(ctx, tx, cartID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrOrderNotFound
			}
			result = existing
			return nil
		}

		now := s.clock.Now().UTC()
		order := domain.Order{
			ID:            s.genID.Generate(),
			CartID:        cart.ID,
			Status:        domain.OrderStatusCompleted,
			PaymentStatus: domain.PaymentStatusAwaiting,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertOrder(ctx, tx, &order); err != nil {
			return err
		}

		collections, err := s.repo.FindCollectionsByCart(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		for _, collection := range collections {
			if err := s.repo.LinkCollectionOrder(ctx, tx, collection.ID, order.ID); err != nil {
				return err
			}
		}

		if err := s.repo.MarkCartCompleted(ctx, tx, cart.ID, now); err != nil {
			return err
		}

		result = &order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cart completed",
		zap.String("cart_id", cartID.String()),
		zap.String("order_id", result.ID.String()),
	)
	return result, nil
}

func (s *Service) FindCollectionByExternalRef(ctx context.Context, externalRef string) (*domain.PaymentCollection, error) {
	return s.repo.FindCollectionByExternalRef(ctx, s.db, externalRef)
}

func (s *Service) FindOrderByCollection(ctx context.Context, collectionID snowflake.ID) (*domain.Order, error) {
	return s.repo.FindOrderByCollection(ctx, s.db, collectionID)
}

func (s *Service) ListPaymentsByCollection(ctx context.Context, collectionID snowflake.ID) ([]domain.Payment, error) {
	return s.repo.ListPaymentsByCollection(ctx, s.db, collectionID)
}

func (s *Service) CapturePayment(ctx context.Context, paymentID snowflake.ID, capturedAt time.Time) error {
	payment, err := s.repo.FindPayment(ctx, s.db, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	if payment.CapturedAt != nil {
		return nil
	}
	return s.repo.CapturePayment(ctx, s.db, paymentID, capturedAt.UTC())
}

func (s *Service) AttachPaymentFailure(ctx context.Context, paymentID snowflake.ID, detail domain.FailureDetail) error {
	return s.mergePaymentMetadata(ctx, paymentID, func(metadata datatypes.JSONMap, now time.Time) {
		metadata["failure_message"] = detail.Message
		if detail.Code != "" {
			metadata["failure_code"] = detail.Code
		}
		if detail.DeclineCode != "" {
			metadata["failure_decline_code"] = detail.DeclineCode
		}
		metadata["failed_at"] = now.Format(time.RFC3339)
	})
}

func (s *Service) AttachPaymentRefund(ctx context.Context, paymentID snowflake.ID, amountMinor int64, refundedAt time.Time) error {
	return s.mergePaymentMetadata(ctx, paymentID, func(metadata datatypes.JSONMap, _ time.Time) {
		metadata["refunded"] = true
		metadata["refund_amount"] = amountMinor
		metadata["refund_amount_display"] = money.MajorString(amountMinor)
		metadata["refund_date"] = refundedAt.UTC().Format(time.RFC3339)
	})
}

func (s *Service) mergePaymentMetadata(ctx context.Context, paymentID snowflake.ID, apply func(metadata datatypes.JSONMap, now time.Time)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		if payment.Metadata == nil {
			payment.Metadata = datatypes.JSONMap{}
		}
		apply(payment.Metadata, s.clock.Now().UTC())
		return s.repo.UpdatePaymentMetadata(ctx, tx, paymentID, payment.Metadata)
	})
}

func (s *Service) SetOrderPaymentStatus(ctx context.Context, orderID snowflake.ID, paymentStatus string) error {
	return s.repo.UpdateOrderPaymentStatus(ctx, s.db, orderID, paymentStatus, s.clock.Now().UTC())
}

func (s *Service) MarkOrderRefunded(ctx context.Context, orderID snowflake.ID) error {
	return s.repo.UpdateOrderStatus(ctx, s.db, orderID, domain.OrderStatusRefunded, domain.PaymentStatusRefunded, s.clock.Now().UTC())
}

func (s *Service) ListUncapturedSince(ctx context.Context, provider string, cutoff time.Time) ([]domain.Payment, error) {
	return s.repo.ListUncapturedSince(ctx, s.db, provider, cutoff.UTC())
}
