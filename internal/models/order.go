package models

import (
	"fmt"
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every valid status, in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether s is a member of the status enumeration.
func (s OrderStatus) IsValid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the move from s to next is allowed.
// Forward path is pending -> processing -> shipped -> completed; any
// non-terminal status may also be cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusShipped
	case StatusShipped:
		return next == StatusCompleted
	}
	return false
}

// PaymentStatus tracks verification of the buyer's bank transfer.
type PaymentStatus string

const (
	PaymentAwaiting            PaymentStatus = "awaiting"
	PaymentPendingVerification PaymentStatus = "pending_verification"
)

// PaymentMethod is how the buyer pays for the order.
type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCard         PaymentMethod = "card"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	return m == PaymentBankTransfer || m == PaymentCard
}

// CargoCompanies is the fixed courier enumeration offered at checkout.
var CargoCompanies = []string{"yurtici", "aras", "ptt", "surat"}

// IsValidCargoCompany reports whether id is one of the offered couriers.
func IsValidCargoCompany(id string) bool {
	for _, c := range CargoCompanies {
		if c == id {
			return true
		}
	}
	return false
}

// Customer holds the buyer's contact details as entered at checkout.
type Customer struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"required,numeric"`
	Email     string `json:"email" validate:"omitempty,email"`
}

// ShippingAddress is the delivery address collected at checkout. District
// must belong to the district set resolved for City at selection time.
type ShippingAddress struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	District   string `json:"district" validate:"required"`
	PostalCode string `json:"postal_code"`
	OrderNote  string `json:"order_note"`
}

// OrderItem is a snapshot of one cart line at submission time.
type OrderItem struct {
	ID        uint    `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID   string  `json:"-" gorm:"index;type:varchar(36)"`
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"` // unit price at the time of order
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
}

// Order is a persisted, completed checkout. The store-assigned ID is
// authoritative; OrderNumber is a 7-digit display label generated at
// checkout start and is not guaranteed unique.
type Order struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber       string          `json:"order_number" gorm:"type:varchar(7);index"`
	Customer          Customer        `json:"customer" gorm:"embedded;embeddedPrefix:customer_"`
	ShippingAddress   ShippingAddress `json:"shipping_address" gorm:"embedded;embeddedPrefix:shipping_"`
	Items             []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	Total             float64         `json:"total"`
	OriginalTotal     float64         `json:"original_total"`
	Discount          int             `json:"discount"`
	CargoCompany      string          `json:"cargo_company"`
	PaymentMethod     PaymentMethod   `json:"payment_method" gorm:"type:varchar(20)"`
	Status            OrderStatus     `json:"status" gorm:"type:varchar(20);index"`
	PaymentStatus     PaymentStatus   `json:"payment_status" gorm:"type:varchar(30)"`
	ReceiptURL        string          `json:"receipt_url,omitempty"`
	ReceiptUploadedAt *time.Time      `json:"receipt_uploaded_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AttachReceipt records the uploaded payment receipt and moves the payment
// into verification.
func (o *Order) AttachReceipt(url string, at time.Time) {
	o.ReceiptURL = url
	o.ReceiptUploadedAt = &at
	o.PaymentStatus = PaymentPendingVerification
}

// Transition applies a validated status change.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid status transition from %s to %s", o.Status, next)
	}
	o.Status = next
	return nil
}
