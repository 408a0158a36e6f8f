package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/repositories"
)

const defaultWishlistLimit = 100

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrWishlistLimitReached indicates the per-user wishlist cap was hit.
	ErrWishlistLimitReached = errors.New("cart: wishlist limit reached")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts         repositories.CartRepository
	Wishlists     repositories.WishlistRepository
	Syncer        *CartSyncer
	WishlistLimit int
	Currency      string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts         repositories.CartRepository
	wishlists     repositories.WishlistRepository
	syncer        *CartSyncer
	wishlistLimit int
	currency      string
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Wishlists == nil {
		return nil, errors.New("cart service: wishlist repository is required")
	}

	limit := deps.WishlistLimit
	if limit <= 0 {
		limit = defaultWishlistLimit
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:         deps.Carts,
		wishlists:     deps.Wishlists,
		syncer:        deps.Syncer,
		wishlistLimit: limit,
		currency:      currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetCart returns the stored cart, or an empty one when none exists yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Cart{ID: uid, UserID: uid, Currency: s.currency}, nil
		}
		return Cart{}, err
	}
	return cart, nil
}

// SaveCart persists the cart. When a write-behind syncer is configured the
// write is queued and flushed on its interval instead of hitting the store
// on every keystroke.
func (s *cartService) SaveCart(ctx context.Context, cart Cart) (Cart, error) {
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := validateCartItems(cart.Items); err != nil {
		return Cart{}, err
	}
	cart.ID = uid
	cart.UserID = uid
	if strings.TrimSpace(cart.Currency) == "" {
		cart.Currency = s.currency
	}
	cart.UpdatedAt = s.clock()

	if s.syncer != nil {
		s.syncer.Enqueue(cart)
		return cart, nil
	}
	return s.carts.UpsertCart(ctx, cart)
}

// Merge folds a device-local cart into the stored one. Matching product+size
// lines sum their quantities, the merged cart replaces the remote copy, and
// the caller drops its local copy afterwards.
func (s *cartService) Merge(ctx context.Context, userID string, local []CartItem) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := validateCartItems(local); err != nil {
		return Cart{}, err
	}

	remote, err := s.GetCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	merged := mergeCartItems(remote.Items, local)
	cart, err := s.carts.ReplaceItems(ctx, uid, merged)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart.merged", map[string]any{
		"userId":     uid,
		"localLines": len(local),
		"totalLines": len(cart.Items),
	})
	return cart, nil
}

// ClearCart removes the stored cart.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if s.syncer != nil {
		s.syncer.Drop(uid)
	}
	if err := s.carts.Clear(ctx, uid); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return err
	}
	return nil
}

func (s *cartService) ListWishlist(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[WishlistItem], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[WishlistItem]{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.wishlists.List(ctx, uid, pager)
}

// AddToWishlist stores the item, reporting whether it was newly added.
func (s *cartService) AddToWishlist(ctx context.Context, userID string, item WishlistItem) (bool, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(item.ProductID) == "" {
		return false, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = s.clock()
	}
	created, err := s.wishlists.Put(ctx, uid, item, s.wishlistLimit)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return false, fmt.Errorf("%w: %v", ErrWishlistLimitReached, err)
		}
		return false, err
	}
	return created, nil
}

func (s *cartService) RemoveFromWishlist(ctx context.Context, userID string, productID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	return s.wishlists.Delete(ctx, uid, strings.TrimSpace(productID))
}

func validateCartItems(items []CartItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d is missing product id", ErrCartInvalidInput, i)
		}
		if strings.TrimSpace(item.Size) == "" {
			return fmt.Errorf("%w: item %d is missing size", ErrCartInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has non-positive quantity", ErrCartInvalidInput, i)
		}
	}
	return nil
}

// mergeCartItems sums quantities for lines sharing product and size. Remote
// lines keep their position; new local lines append in order.
func mergeCartItems(remote, local []CartItem) []CartItem {
	type lineKey struct {
		productID string
		size      string
	}

	merged := make([]CartItem, len(remote))
	copy(merged, remote)
	index := make(map[lineKey]int, len(merged))
	for i, item := range merged {
		index[lineKey{strings.TrimSpace(item.ProductID), strings.TrimSpace(item.Size)}] = i
	}

	for _, item := range local {
		key := lineKey{strings.TrimSpace(item.ProductID), strings.TrimSpace(item.Size)}
		if i, ok := index[key]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
