package services

import (
	"context"
	"time"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Address            = domain.Address
	Product            = domain.Product
	StockLine          = domain.StockLine
	Coupon             = domain.Coupon
	CouponStatus       = domain.CouponStatus
	CouponQuote        = domain.CouponQuote
	Return             = domain.Return
	ReturnStatus       = domain.ReturnStatus
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	WishlistItem       = domain.WishlistItem
	OrderEvent         = domain.OrderEvent
	SystemHealthReport = domain.SystemHealthReport
)

// OrderListFilter narrows admin order listings.
type OrderListFilter = repositories.OrderListFilter

// CheckoutService records verified payments as orders.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
}

// PlaceOrderCommand carries the gateway callback plus the cart snapshot taken at checkout.
type PlaceOrderCommand struct {
	UserID           string
	Email            string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Items            []PlaceOrderItem
	ShippingAddress  Address
	CouponCode       string
	Currency         string
}

// PlaceOrderItem is one cart line at the moment of purchase.
type PlaceOrderItem struct {
	ProductID string
	Name      string
	Size      string
	Quantity  int
	UnitPrice int64
	ImageURL  *string
}

// OrderService encapsulates order reads, status transitions, and the returns flow.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, []OrderItem, error)
	GetOrderByCode(ctx context.Context, code string) (Order, []OrderItem, error)
	ListOrdersForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error)
	FileReturn(ctx context.Context, cmd FileReturnCommand) (Return, error)
	ListReturns(ctx context.Context, pager Pagination) (domain.CursorPage[Return], error)
}

// OrderStatusTransitionCommand requests moving an order to a target status.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	TrackingCode string
	Carrier      string
	// RefundAmount is the operator-entered amount, required for refunds.
	RefundAmount string
	ActorID      string
}

// UpdateTrackingCommand edits tracking details on a shipped order.
type UpdateTrackingCommand struct {
	OrderID      string
	TrackingCode string
	Carrier      string
	ActorID      string
}

// FileReturnCommand opens a return request against a delivered order.
type FileReturnCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

// CouponService answers validity questions and manages the coupon ledger.
type CouponService interface {
	Validate(ctx context.Context, code string, subtotal int64) (CouponQuote, error)
	RedeemAtCheckout(ctx context.Context, code string) error
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
}

// UpsertCouponCommand captures admin-entered coupon fields.
type UpsertCouponCommand struct {
	Code       string
	Percent    int
	Status     CouponStatus
	ValidFrom  time.Time
	ValidUntil time.Time
	MaxUses    *int
	ActorID    string
}

// CouponListFilter narrows admin coupon listings.
type CouponListFilter = repositories.CouponListFilter

// InventoryService adjusts per-size stock counts as orders are placed and refunded.
type InventoryService interface {
	DeductForOrder(ctx context.Context, items []OrderItem) error
	RestockForOrder(ctx context.Context, items []OrderItem) error
}

// CartService stores carts remotely and reconciles them with device-local copies.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	SaveCart(ctx context.Context, cart Cart) (Cart, error)
	Merge(ctx context.Context, userID string, local []CartItem) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
	ListWishlist(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[WishlistItem], error)
	AddToWishlist(ctx context.Context, userID string, item WishlistItem) (bool, error)
	RemoveFromWishlist(ctx context.Context, userID string, productID string) error
}

// CatalogService exposes storefront product reads.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter = repositories.ProductListFilter

// SystemService aggregates dependency health for liveness and readiness endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// ConfirmationMailer sends the order confirmation mail.
type ConfirmationMailer interface {
	SendOrderConfirmation(ctx context.Context, order Order, items []OrderItem) error
}
