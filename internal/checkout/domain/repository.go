package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	FindCart(ctx context.Context, db *gorm.DB, cartID snowflake.ID) (*Cart, error)
	MarkCartCompleted(ctx context.Context, db *gorm.DB, cartID snowflake.ID, completedAt time.Time) error

	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	FindOrderByCart(ctx context.Context, db *gorm.DB, cartID snowflake.ID) (*Order, error)
	FindOrderByCollection(ctx context.Context, db *gorm.DB, collectionID snowflake.ID) (*Order, error)
	UpdateOrderStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status, paymentStatus string, updatedAt time.Time) error
	UpdateOrderPaymentStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, paymentStatus string, updatedAt time.Time) error

	FindCollectionByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*PaymentCollection, error)
	LinkCollectionOrder(ctx context.Context, db *gorm.DB, collectionID, orderID snowflake.ID) error
	FindCollectionsByCart(ctx context.Context, db *gorm.DB, cartID snowflake.ID) ([]PaymentCollection, error)

	FindPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*Payment, error)
	ListPaymentsByCollection(ctx context.Context, db *gorm.DB, collectionID snowflake.ID) ([]Payment, error)
	CapturePayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, capturedAt time.Time) error
	UpdatePaymentMetadata(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, metadata datatypes.JSONMap) error
	ListUncapturedSince(ctx context.Context, db *gorm.DB, provider string, cutoff time.Time) ([]Payment, error)
}
