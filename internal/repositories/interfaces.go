package repositories

import (
	"context"
	"time"

	domain "github.com/stitchfield/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Products() ProductRepository
	Coupons() CouponRepository
	Returns() ReturnRepository
	Carts() CartRepository
	Wishlists() WishlistRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCode(ctx context.Context, code string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status     *domain.OrderStatus
	UserID     *string
	Pagination domain.Pagination
}

// OrderItemRepository stores line item snapshots underneath an order document.
type OrderItemRepository interface {
	InsertMany(ctx context.Context, orderID string, items []domain.OrderItem) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error)
}

// ProductRepository reads catalog products and mutates per-size stock counts.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// ApplyStockDeltas adjusts per-size counts inside a transaction. Negative
	// deltas clamp the resulting count at zero rather than failing.
	ApplyStockDeltas(ctx context.Context, productID string, deltas map[string]int, now time.Time) (domain.Product, error)
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category   *string
	Status     *string
	Pagination domain.Pagination
}

// CouponRepository maintains coupon definitions and usage counters.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error)
	// IncrementUsage bumps the redemption counter by one. Implementations
	// attempt an atomic increment first and fall back to read-then-write.
	IncrementUsage(ctx context.Context, couponID string, now time.Time) (domain.Coupon, error)
}

// CouponListFilter narrows coupon listings.
type CouponListFilter struct {
	Status     []domain.CouponStatus
	Pagination domain.Pagination
}

// ReturnRepository records customer return requests and their refund state.
type ReturnRepository interface {
	Insert(ctx context.Context, ret domain.Return) error
	Update(ctx context.Context, ret domain.Return) error
	FindByID(ctx context.Context, returnID string) (domain.Return, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Return, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Return], error)
}

// CartRepository owns cart header + items persistence.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// WishlistRepository tracks saved products per user.
type WishlistRepository interface {
	List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error)
	Put(ctx context.Context, userID string, item domain.WishlistItem, limit int) (bool, error)
	Delete(ctx context.Context, userID string, productID string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
