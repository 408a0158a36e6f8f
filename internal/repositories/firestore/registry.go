package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/stitchfield/api/internal/platform/firestore"
	"github.com/stitchfield/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	orders     *OrderRepository
	orderItems *OrderItemRepository
	products   *ProductRepository
	coupons    *CouponRepository
	returns    *ReturnRepository
	carts      *CartRepository
	wishlists  *WishlistRepository
	health     repositories.HealthRepository
}

// NewRegistry wires every Firestore repository against a shared provider.
// The health repository is assembled by the caller so it can probe
// dependencies beyond Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if health == nil {
		return nil, errors.New("registry requires health repository")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	orderItems, err := NewOrderItemRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	returns, err := NewReturnRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	wishlists, err := NewWishlistRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		orders:     orders,
		orderItems: orderItems,
		products:   products,
		coupons:    coupons,
		returns:    returns,
		carts:      carts,
		wishlists:  wishlists,
		health:     health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Orders returns the order header repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// OrderItems returns the order line item repository.
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.orderItems }

// Products returns the product catalog repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Coupons returns the coupon ledger repository.
func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

// Returns returns the return request repository.
func (r *Registry) Returns() repositories.ReturnRepository { return r.returns }

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Wishlists returns the wishlist repository.
func (r *Registry) Wishlists() repositories.WishlistRepository { return r.wishlists }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn without opening a storewide transaction. Each
// repository call manages its own document-level atomicity; multi-step
// flows stay sequential and recover via compensating writes.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
