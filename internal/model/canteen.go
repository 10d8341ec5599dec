package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderDone      OrderStatus = "done"
)

type PaymentMode string

const (
	PaymentCash   PaymentMode = "cash"
	PaymentGCash  PaymentMode = "gcash"
	PaymentCredit PaymentMode = "credit"
)

func (p PaymentMode) Valid() bool {
	switch p {
	case PaymentCash, PaymentGCash, PaymentCredit:
		return true
	}
	return false
}

type CustomerType string

const (
	CustomerMember  CustomerType = "member"
	CustomerVisitor CustomerType = "visitor"
)

type CanteenItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CanteenOrder struct {
	ID           int64              `json:"id"`
	OrderNo      string             `json:"order_no"`
	MemberID     *int64             `json:"member_id"`
	CustomerName string             `json:"customer_name"`
	CustomerType CustomerType       `json:"customer_type"`
	Total        decimal.Decimal    `json:"total"`
	PaymentMode  PaymentMode        `json:"payment_mode"`
	Status       OrderStatus        `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	ReadyAt      *time.Time         `json:"ready_at"`
	DoneAt       *time.Time         `json:"done_at"`
	Items        []CanteenOrderItem `json:"items,omitempty"`
}

// CanteenOrderItem snapshots the menu name and price at order time.
type CanteenOrderItem struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	ItemID   *int64          `json:"item_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
