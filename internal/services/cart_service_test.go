package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/stitchfield/api/internal/domain"
)

type stubCartRepo struct {
	mu           sync.Mutex
	carts        map[string]domain.Cart
	upserts      int
	upsertErrFor map[string]error
	clearErr     error
}

func (r *stubCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, stubRepoError{notFound: true}
	}
	return cart, nil
}

func (r *stubCartRepo) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.upsertErrFor[cart.UserID]; ok {
		return domain.Cart{}, err
	}
	if r.carts == nil {
		r.carts = map[string]domain.Cart{}
	}
	r.carts[cart.UserID] = cart
	r.upserts++
	return cart, nil
}

func (r *stubCartRepo) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.carts[userID]
	cart.ID = userID
	cart.UserID = userID
	cart.Items = items
	if r.carts == nil {
		r.carts = map[string]domain.Cart{}
	}
	r.carts[userID] = cart
	return cart, nil
}

func (r *stubCartRepo) Clear(ctx context.Context, userID string) error {
	if r.clearErr != nil {
		return r.clearErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}

type stubWishlistRepo struct {
	items   map[string]map[string]domain.WishlistItem
	putErr  error
	limitAt int
}

func (r *stubWishlistRepo) List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error) {
	entries := make([]domain.WishlistItem, 0)
	for _, item := range r.items[userID] {
		entries = append(entries, item)
	}
	return domain.CursorPage[domain.WishlistItem]{Items: entries}, nil
}

func (r *stubWishlistRepo) Put(ctx context.Context, userID string, item domain.WishlistItem, limit int) (bool, error) {
	if r.putErr != nil {
		return false, r.putErr
	}
	if r.items == nil {
		r.items = map[string]map[string]domain.WishlistItem{}
	}
	bucket, ok := r.items[userID]
	if !ok {
		bucket = map[string]domain.WishlistItem{}
		r.items[userID] = bucket
	}
	if _, exists := bucket[item.ProductID]; exists {
		return false, nil
	}
	if limit > 0 && len(bucket) >= limit {
		return false, stubRepoError{conflict: true}
	}
	bucket[item.ProductID] = item
	return true, nil
}

func (r *stubWishlistRepo) Delete(ctx context.Context, userID string, productID string) error {
	delete(r.items[userID], productID)
	return nil
}

func newCartServiceForTest(t *testing.T, carts *stubCartRepo, wishlists *stubWishlistRepo, syncer *CartSyncer) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:         carts,
		Wishlists:     wishlists,
		Syncer:        syncer,
		WishlistLimit: 3,
		Currency:      "INR",
		Clock:         fixedClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestGetCartReturnsEmptyCartWhenMissing(t *testing.T) {
	svc := newCartServiceForTest(t, &stubCartRepo{carts: map[string]domain.Cart{}}, &stubWishlistRepo{}, nil)

	cart, err := svc.GetCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.UserID != "user-1" || len(cart.Items) != 0 {
		t.Fatalf("cart = %+v, want empty cart for user-1", cart)
	}
	if cart.Currency != "INR" {
		t.Fatalf("currency = %s, want INR", cart.Currency)
	}
}

func TestMergeSumsQuantitiesOnMatchingLines(t *testing.T) {
	carts := &stubCartRepo{carts: map[string]domain.Cart{
		"user-1": {
			ID:     "user-1",
			UserID: "user-1",
			Items: []domain.CartItem{
				{ProductID: "prod_a", Size: "M", Quantity: 1, UnitPrice: 1999},
				{ProductID: "prod_b", Size: "L", Quantity: 1, UnitPrice: 999},
			},
		},
	}}
	svc := newCartServiceForTest(t, carts, &stubWishlistRepo{}, nil)

	local := []domain.CartItem{
		{ProductID: "prod_a", Size: "M", Quantity: 2, UnitPrice: 1999},
		{ProductID: "prod_c", Size: "S", Quantity: 1, UnitPrice: 499},
	}
	merged, err := svc.Merge(context.Background(), "user-1", local)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Items) != 3 {
		t.Fatalf("merged lines = %d, want 3", len(merged.Items))
	}
	if merged.Items[0].Quantity != 3 {
		t.Fatalf("prod_a quantity = %d, want 3", merged.Items[0].Quantity)
	}
	if merged.Items[2].ProductID != "prod_c" {
		t.Fatalf("appended line = %s, want prod_c", merged.Items[2].ProductID)
	}
	if stored := carts.carts["user-1"]; len(stored.Items) != 3 {
		t.Fatalf("remote not overwritten, lines = %d", len(stored.Items))
	}
}

func TestMergeTreatsDifferentSizesAsDistinctLines(t *testing.T) {
	carts := &stubCartRepo{carts: map[string]domain.Cart{
		"user-1": {ID: "user-1", UserID: "user-1", Items: []domain.CartItem{
			{ProductID: "prod_a", Size: "M", Quantity: 1},
		}},
	}}
	svc := newCartServiceForTest(t, carts, &stubWishlistRepo{}, nil)

	merged, err := svc.Merge(context.Background(), "user-1", []domain.CartItem{
		{ProductID: "prod_a", Size: "L", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Items) != 2 {
		t.Fatalf("merged lines = %d, want 2", len(merged.Items))
	}
}

func TestSaveCartQueuesThroughSyncer(t *testing.T) {
	carts := &stubCartRepo{carts: map[string]domain.Cart{}}
	syncer, err := NewCartSyncer(carts, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewCartSyncer: %v", err)
	}
	svc := newCartServiceForTest(t, carts, &stubWishlistRepo{}, syncer)

	cart := domain.Cart{UserID: "user-1", Items: []domain.CartItem{{ProductID: "prod_a", Size: "M", Quantity: 1}}}
	if _, err := svc.SaveCart(context.Background(), cart); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if carts.upserts != 0 {
		t.Fatalf("upserts = %d before flush, want 0", carts.upserts)
	}

	syncer.Flush(context.Background())
	if carts.upserts != 1 {
		t.Fatalf("upserts = %d after flush, want 1", carts.upserts)
	}
}

func TestCartSyncerCoalescesWritesPerUser(t *testing.T) {
	carts := &stubCartRepo{carts: map[string]domain.Cart{}}
	syncer, err := NewCartSyncer(carts, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewCartSyncer: %v", err)
	}

	for q := 1; q <= 5; q++ {
		syncer.Enqueue(domain.Cart{UserID: "user-1", Items: []domain.CartItem{{ProductID: "prod_a", Size: "M", Quantity: q}}})
	}
	syncer.Flush(context.Background())

	if carts.upserts != 1 {
		t.Fatalf("upserts = %d, want coalesced single write", carts.upserts)
	}
	if got := carts.carts["user-1"].Items[0].Quantity; got != 5 {
		t.Fatalf("flushed quantity = %d, want last write 5", got)
	}
}

func TestCartSyncerRequeuesFailedWrites(t *testing.T) {
	carts := &stubCartRepo{
		carts:        map[string]domain.Cart{},
		upsertErrFor: map[string]error{"user-1": errors.New("unavailable")},
	}
	syncer, err := NewCartSyncer(carts, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewCartSyncer: %v", err)
	}

	syncer.Enqueue(domain.Cart{UserID: "user-1"})
	syncer.Flush(context.Background())
	if _, ok := carts.carts["user-1"]; ok {
		t.Fatal("failed write reached the store")
	}

	delete(carts.upsertErrFor, "user-1")
	syncer.Flush(context.Background())
	if _, ok := carts.carts["user-1"]; !ok {
		t.Fatal("requeued write never flushed")
	}
}

func TestClearCartDropsQueuedWrites(t *testing.T) {
	carts := &stubCartRepo{carts: map[string]domain.Cart{}}
	syncer, err := NewCartSyncer(carts, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewCartSyncer: %v", err)
	}
	svc := newCartServiceForTest(t, carts, &stubWishlistRepo{}, syncer)

	if _, err := svc.SaveCart(context.Background(), domain.Cart{UserID: "user-1"}); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if err := svc.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	syncer.Flush(context.Background())
	if carts.upserts != 0 {
		t.Fatal("queued write survived ClearCart")
	}
}

func TestAddToWishlistReportsLimit(t *testing.T) {
	wishlists := &stubWishlistRepo{}
	svc := newCartServiceForTest(t, &stubCartRepo{carts: map[string]domain.Cart{}}, wishlists, nil)

	for i, id := range []string{"p1", "p2", "p3"} {
		created, err := svc.AddToWishlist(context.Background(), "user-1", domain.WishlistItem{ProductID: id})
		if err != nil {
			t.Fatalf("AddToWishlist %d: %v", i, err)
		}
		if !created {
			t.Fatalf("AddToWishlist %d reported existing item", i)
		}
	}

	if _, err := svc.AddToWishlist(context.Background(), "user-1", domain.WishlistItem{ProductID: "p4"}); !errors.Is(err, ErrWishlistLimitReached) {
		t.Fatalf("AddToWishlist = %v, want ErrWishlistLimitReached", err)
	}

	created, err := svc.AddToWishlist(context.Background(), "user-1", domain.WishlistItem{ProductID: "p2"})
	if err != nil {
		t.Fatalf("AddToWishlist existing: %v", err)
	}
	if created {
		t.Fatal("existing item reported as newly created")
	}
}
