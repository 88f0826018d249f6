package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Cart is a checkout cart awaiting payment. Totals are integer minor units.
type Cart struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Currency    string       `json:"currency" gorm:"type:text;not null"`
	TotalAmount int64        `json:"total_amount" gorm:"not null"`
	Email       string       `json:"email" gorm:"type:text"`
	CompletedAt *time.Time   `json:"completed_at"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (Cart) TableName() string { return "carts" }

// Order is produced by completing a cart.
type Order struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	CartID        snowflake.ID `json:"cart_id" gorm:"not null;index"`
	Status        string       `json:"status" gorm:"type:text;not null"`
	PaymentStatus string       `json:"payment_status" gorm:"type:text;not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusRefunded  = "refunded"
)

const (
	PaymentStatusAwaiting = "awaiting"
	PaymentStatusCaptured = "captured"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// PaymentCollection groups the payments for one cart/order and carries the
// provider-side correlation reference (e.g. a payment intent id).
type PaymentCollection struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	CartID      snowflake.ID  `json:"cart_id" gorm:"not null;index"`
	OrderID     *snowflake.ID `json:"order_id" gorm:"index"`
	ExternalRef string        `json:"external_ref" gorm:"type:text;not null;index"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
}

func (PaymentCollection) TableName() string { return "payment_collections" }

// Payment is a single authorization/charge within a collection. Capture,
// failure and refund state are written by reconciliation; metadata holds
// provider-specific failure and refund detail.
type Payment struct {
	ID           snowflake.ID      `json:"id" gorm:"primaryKey"`
	CollectionID snowflake.ID      `json:"collection_id" gorm:"not null;index"`
	Provider     string            `json:"provider" gorm:"type:text;not null;index:idx_payments_uncaptured"`
	Amount       int64             `json:"amount" gorm:"not null"`
	Currency     string            `json:"currency" gorm:"type:text;not null"`
	CapturedAt   *time.Time        `json:"captured_at" gorm:"index:idx_payments_uncaptured"`
	Metadata     datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null;index:idx_payments_uncaptured"`
}

func (Payment) TableName() string { return "payments" }
