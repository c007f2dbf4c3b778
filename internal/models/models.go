package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

// Order item statuses
const (
	ItemStatusPending            = "PENDING"
	ItemStatusPartiallyFulfilled = "PARTIALLY_FULFILLED"
	ItemStatusFulfilled          = "FULFILLED"
)

// Stock movement types
const (
	MovementTypeOut        = "OUT"
	MovementTypeIn         = "IN"
	MovementTypeAdjustment = "ADJUSTMENT"
	MovementTypeCustom     = "CUSTOM"
)

// Stock movement statuses
const (
	MovementStatusCompleted = "COMPLETED"
	MovementStatusCancelled = "CANCELLED"
)

// User represents a staff account. Identity issuance lives with the hosted
// identity provider; this table only mirrors what the service needs.
type User struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Email       string         `gorm:"not null;uniqueIndex" json:"email"`
	FullName    *string        `json:"full_name"`
	Role        string         `gorm:"not null;default:user" json:"role"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	APIToken    string         `gorm:"column:api_token;not null;uniqueIndex" json:"-"`
	LastLoginAt *time.Time     `json:"last_login_at"`
}

// Order represents a customer order taken by staff.
type Order struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	OrderNumber  int            `gorm:"not null;uniqueIndex" json:"order_number"`
	CustomerName string         `gorm:"not null" json:"customer_name"`
	Status       string         `gorm:"not null;default:PENDING" json:"status"`
	OrderJSON    []byte         `gorm:"type:jsonb" json:"order_json"`
	CreatedBy    uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	CompletedAt  *time.Time     `json:"completed_at"`
	OrderItems   []OrderItem    `gorm:"foreignKey:OrderID" json:"order_items,omitempty"`
}

// OrderItem is one demand line of an order: a design/lot pair with an
// ordered quantity and the quantity fulfilled by stock movements so far.
type OrderItem struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
	OrderID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"order_id"`
	Design            string         `gorm:"not null" json:"design"`
	LotNumber         string         `gorm:"not null" json:"lot_number"`
	Quantity          int            `gorm:"not null" json:"quantity"`
	FulfilledQuantity int            `gorm:"not null;default:0" json:"fulfilled_quantity"`
	Status            string         `gorm:"not null;default:PENDING" json:"status"`
}

// StockMovement records one aggregated (design, lot) line of a submitted
// stock-out, including every physical identifier that left the warehouse
// and the proof-of-shipment image.
type StockMovement struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
	OrderID           *uuid.UUID     `gorm:"type:uuid;index" json:"order_id"`
	SessionID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	InvoiceNumber     string         `gorm:"not null" json:"invoice_number"`
	Design            string         `gorm:"not null" json:"design"`
	LotNumber         string         `gorm:"not null" json:"lot_number"`
	Quantity          int            `gorm:"not null" json:"quantity"`
	UniqueIdentifiers []byte         `gorm:"type:jsonb" json:"unique_identifiers"`
	ImageURL          *string        `json:"image_url"`
	MovementType      string         `gorm:"not null;default:OUT" json:"movement_type"`
	Status            string         `gorm:"not null;default:COMPLETED" json:"status"`
	SessionJSON       []byte         `gorm:"type:jsonb" json:"session_json"`
	CreatedBy         uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
}

// ScannedItem is the durable copy of one scan-log event, written in the
// single batch at submission time. Validation never reads this table; the
// in-memory session log is authoritative until submit.
type ScannedItem struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	SessionID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"session_id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null" json:"user_id"`
	OrderID          *uuid.UUID `gorm:"type:uuid" json:"order_id"`
	Design           string     `gorm:"not null" json:"design"`
	LotNumber        string     `gorm:"not null" json:"lot_number"`
	UniqueIdentifier string     `gorm:"not null" json:"unique_identifier"`
	IsProcessed      bool       `gorm:"not null;default:false" json:"is_processed"`
	ScannedAt        time.Time  `gorm:"not null" json:"scanned_at"`
}

// PushSubscription stores one browser push endpoint for a user.
type PushSubscription struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Endpoint   string     `gorm:"not null;uniqueIndex" json:"endpoint"`
	P256DH     string     `gorm:"not null" json:"p256dh"`
	Auth       string     `gorm:"not null" json:"auth"`
	IsActive   bool       `gorm:"not null;default:true" json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// OrderEvent is the notification message published to the queue when a
// movement is submitted or an order completes.
type OrderEvent struct {
	Kind        string    `json:"kind"`
	OrderID     *string   `json:"order_id"`
	OrderNumber *int      `json:"order_number"`
	SessionID   string    `json:"session_id"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Order event kinds
const (
	EventKindMovementSubmitted = "MOVEMENT_SUBMITTED"
	EventKindOrderCompleted    = "ORDER_COMPLETED"
)

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Order{},
		&OrderItem{},
		&StockMovement{},
		&ScannedItem{},
		&PushSubscription{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
