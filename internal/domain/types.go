package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusConfirmed indicates payment was verified and the order is queued for fulfilment.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being picked and packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the parcel was handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipping.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturn indicates the customer filed a return after delivery.
	OrderStatusReturn OrderStatus = "return"
	// OrderStatusRefunded indicates an operator confirmed the refund amount and closed the order.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus describes the settlement state recorded on an order.
type PaymentStatus string

const (
	// PaymentStatusPaid indicates the gateway callback was verified.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded indicates the paid amount was returned to the customer.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Address represents the postal address captured at checkout.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// Order captures order headers returned to handlers/services.
type Order struct {
	ID               string
	Code             string
	UserID           string
	Email            string
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentMethod    string
	GatewayOrderID   string
	GatewayPaymentID string
	CouponCode       *string
	Currency         string
	Subtotal         int64
	Discount         int64
	Total            int64
	ShippingAddress  Address
	TrackingCode     *string
	Carrier          *string
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	RefundedAt       *time.Time
}

// OrderItem snapshots a purchased line at the moment of checkout.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Name      string
	Size      string
	Quantity  int
	UnitPrice int64
	LineTotal int64
	ImageURL  *string
}

// Product describes a catalog garment with per-size stock counts.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Status      string
	Price       int64
	Currency    string
	Sizes       map[string]int
	ImageURL    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StockLine addresses a per-size quantity on a single product.
type StockLine struct {
	ProductID string
	Size      string
	Quantity  int
}

// CouponStatus enumerates lifecycle states for coupons.
type CouponStatus string

const (
	// CouponStatusActive indicates the coupon is redeemable within its window.
	CouponStatusActive CouponStatus = "active"
	// CouponStatusScheduled indicates the coupon was created ahead of its window.
	CouponStatusScheduled CouponStatus = "scheduled"
	// CouponStatusDisabled indicates an operator turned the coupon off.
	CouponStatusDisabled CouponStatus = "disabled"
)

// Coupon describes a percentage discount code persisted by admin services.
type Coupon struct {
	ID         string
	Code       string
	Status     CouponStatus
	Percent    int
	ValidFrom  time.Time
	ValidUntil time.Time
	MaxUses    *int
	Uses       int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReturnStatus enumerates lifecycle states for return requests.
type ReturnStatus string

const (
	// ReturnStatusRequested indicates the customer filed the return and it awaits the refund.
	ReturnStatusRequested ReturnStatus = "requested"
	// ReturnStatusRefunded indicates the operator confirmed the refund.
	ReturnStatusRefunded ReturnStatus = "refunded"
)

// Return records a customer-initiated return tied to a delivered order.
type Return struct {
	ID         string
	OrderID    string
	OrderCode  string
	UserID     string
	Reason     string
	Status     ReturnStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RefundedAt *time.Time
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores a single product/size entry within a cart.
type CartItem struct {
	ProductID string
	Name      string
	Size      string
	Quantity  int
	UnitPrice int64
	ImageURL  *string
	AddedAt   time.Time
}

// WishlistItem stores a saved product reference for a user.
type WishlistItem struct {
	ProductID string
	Name      string
	Price     int64
	ImageURL  *string
	AddedAt   time.Time
}

// OrderEvent captures order lifecycle changes for downstream consumers.
type OrderEvent struct {
	ID         string
	Type       string
	OrderID    string
	OrderCode  string
	UserID     string
	Status     OrderStatus
	OccurredAt time.Time
	Metadata   map[string]any
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
