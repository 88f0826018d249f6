package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/checkout/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindCart(ctx context.Context, db *gorm.DB, cartID snowflake.ID) (*domain.Cart, error) {
	var item domain.Cart
	err := db.WithContext(ctx).Raw(
		`SELECT id, currency, total_amount, email, completed_at, created_at
		 FROM carts
		 WHERE id = ?
		 LIMIT 1`,
		cartID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkCartCompleted(ctx context.Context, db *gorm.DB, cartID snowflake.ID, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE carts
		 SET completed_at = ?
		 WHERE id = ? AND completed_at IS NULL`,
		completedAt,
		cartID,
	).Error
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, cart_id, status, payment_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CartID,
		order.Status,
		order.PaymentStatus,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindOrderByCart(ctx context.Context, db *gorm.DB, cartID snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, cart_id, status, payment_status, created_at, updated_at
		 FROM orders
		 WHERE cart_id = ?
		 LIMIT 1`,
		cartID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOrderByCollection(ctx context.Context, db *gorm.DB, collectionID snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT o.id, o.cart_id, o.status, o.payment_status, o.created_at, o.updated_at
		 FROM orders o
		 JOIN payment_collections pc ON pc.order_id = o.id
		 WHERE pc.id = ?
		 LIMIT 1`,
		collectionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status, paymentStatus string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, payment_status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		paymentStatus,
		updatedAt,
		orderID,
	).Error
}

func (r *repo) UpdateOrderPaymentStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, paymentStatus string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?, updated_at = ?
		 WHERE id = ?`,
		paymentStatus,
		updatedAt,
		orderID,
	).Error
}

func (r *repo) FindCollectionByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*domain.PaymentCollection, error) {
	var item domain.PaymentCollection
	err := db.WithContext(ctx).Raw(
		`SELECT id, cart_id, order_id, external_ref, created_at
		 FROM payment_collections
		 WHERE external_ref = ?
		 LIMIT 1`,
		externalRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LinkCollectionOrder(ctx context.Context, db *gorm.DB, collectionID, orderID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_collections
		 SET order_id = ?
		 WHERE id = ?`,
		orderID,
		collectionID,
	).Error
}

func (r *repo) FindCollectionsByCart(ctx context.Context, db *gorm.DB, cartID snowflake.ID) ([]domain.PaymentCollection, error) {
	var items []domain.PaymentCollection
	err := db.WithContext(ctx).Raw(
		`SELECT id, cart_id, order_id, external_ref, created_at
		 FROM payment_collections
		 WHERE cart_id = ?
		 ORDER BY created_at ASC`,
		cartID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, collection_id, provider, amount, currency, captured_at, metadata, created_at
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListPaymentsByCollection(ctx context.Context, db *gorm.DB, collectionID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, collection_id, provider, amount, currency, captured_at, metadata, created_at
		 FROM payments
		 WHERE collection_id = ?
		 ORDER BY created_at ASC`,
		collectionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CapturePayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, capturedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET captured_at = ?
		 WHERE id = ? AND captured_at IS NULL`,
		capturedAt,
		paymentID,
	).Error
}

func (r *repo) UpdatePaymentMetadata(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, metadata datatypes.JSONMap) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET metadata = ?
		 WHERE id = ?`,
		metadata,
		paymentID,
	).Error
}

func (r *repo) ListUncapturedSince(ctx context.Context, db *gorm.DB, provider string, cutoff time.Time) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, collection_id, provider, amount, currency, captured_at, metadata, created_at
		 FROM payments
		 WHERE provider = ? AND captured_at IS NULL AND created_at >= ?
		 ORDER BY created_at ASC`,
		provider,
		cutoff,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
