package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/platform/auth"
	"github.com/stitchfield/api/internal/services"
)

type stubCartService struct {
	getFn      func(context.Context, string) (services.Cart, error)
	saveFn     func(context.Context, services.Cart) (services.Cart, error)
	mergeFn    func(context.Context, string, []services.CartItem) (services.Cart, error)
	clearFn    func(context.Context, string) error
	listWishFn func(context.Context, string, services.Pagination) (domain.CursorPage[services.WishlistItem], error)
	addWishFn  func(context.Context, string, services.WishlistItem) (bool, error)
	delWishFn  func(context.Context, string, string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) SaveCart(ctx context.Context, cart services.Cart) (services.Cart, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, cart)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) Merge(ctx context.Context, userID string, local []services.CartItem) (services.Cart, error) {
	if s.mergeFn != nil {
		return s.mergeFn(ctx, userID, local)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return errors.New("not implemented")
}

func (s *stubCartService) ListWishlist(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[services.WishlistItem], error) {
	if s.listWishFn != nil {
		return s.listWishFn(ctx, userID, pager)
	}
	return domain.CursorPage[services.WishlistItem]{}, nil
}

func (s *stubCartService) AddToWishlist(ctx context.Context, userID string, item services.WishlistItem) (bool, error) {
	if s.addWishFn != nil {
		return s.addWishFn(ctx, userID, item)
	}
	return false, errors.New("not implemented")
}

func (s *stubCartService) RemoveFromWishlist(ctx context.Context, userID string, productID string) error {
	if s.delWishFn != nil {
		return s.delWishFn(ctx, userID, productID)
	}
	return errors.New("not implemented")
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
}

func TestCartHandlersGetCart(t *testing.T) {
	updated := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	service := &stubCartService{
		getFn: func(_ context.Context, userID string) (services.Cart, error) {
			return services.Cart{
				ID:       userID,
				UserID:   userID,
				Currency: "inr",
				Items: []services.CartItem{{
					ProductID: "prod_a", Name: "Linen Shirt", Size: "M",
					Quantity: 2, UnitPrice: 1999, AddedAt: updated,
				}},
				UpdatedAt: updated,
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Cart.Currency != "INR" {
		t.Fatalf("expected currency INR, got %s", resp.Cart.Currency)
	}
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %#v", resp.Cart.Items)
	}
}

func TestCartHandlersPutCart(t *testing.T) {
	var captured services.Cart
	service := &stubCartService{
		saveFn: func(_ context.Context, cart services.Cart) (services.Cart, error) {
			captured = cart
			return cart, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := []byte(`{"currency":"inr","items":[{"product_id":"prod_a","name":"Linen Shirt","size":"M","quantity":1,"unit_price":1999}]}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/cart", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", captured.UserID)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod_a" {
		t.Fatalf("unexpected items: %#v", captured.Items)
	}
}

func TestCartHandlersMergeCart(t *testing.T) {
	var capturedLocal []services.CartItem
	service := &stubCartService{
		mergeFn: func(_ context.Context, userID string, local []services.CartItem) (services.Cart, error) {
			capturedLocal = local
			return services.Cart{ID: userID, UserID: userID, Currency: "inr", Items: local}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := []byte(`{"items":[{"product_id":"prod_b","name":"Chinos","size":"32","quantity":3,"unit_price":500}]}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/merge", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(capturedLocal) != 1 || capturedLocal[0].Quantity != 3 {
		t.Fatalf("unexpected local items: %#v", capturedLocal)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := ""
	service := &stubCartService{
		clearFn: func(_ context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodDelete, "/cart", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if cleared != "user-1" {
		t.Fatalf("expected user-1 cleared, got %s", cleared)
	}
}

func TestCartHandlersInvalidCart(t *testing.T) {
	service := &stubCartService{
		saveFn: func(context.Context, services.Cart) (services.Cart, error) {
			return services.Cart{}, services.ErrCartInvalidInput
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := []byte(`{"items":[{"product_id":"","quantity":0}]}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/cart", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersUnauthenticated(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestWishlistHandlersAddItemCreated(t *testing.T) {
	var capturedItem services.WishlistItem
	service := &stubCartService{
		addWishFn: func(_ context.Context, _ string, item services.WishlistItem) (bool, error) {
			capturedItem = item
			return true, nil
		},
	}

	handler := NewWishlistHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/wishlist", handler.Routes)

	body := []byte(`{"name":"Linen Shirt","price":1999}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/wishlist/prod_a", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedItem.ProductID != "prod_a" || capturedItem.Price != 1999 {
		t.Fatalf("unexpected item: %#v", capturedItem)
	}

	var resp wishlistItemResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Created {
		t.Fatalf("expected created true")
	}
}

func TestWishlistHandlersAddItemAlreadyPresent(t *testing.T) {
	service := &stubCartService{
		addWishFn: func(context.Context, string, services.WishlistItem) (bool, error) {
			return false, nil
		},
	}

	handler := NewWishlistHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/wishlist", handler.Routes)

	body := []byte(`{"name":"Linen Shirt","price":1999}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/wishlist/prod_a", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for existing item, got %d", rr.Code)
	}
}

func TestWishlistHandlersLimitReached(t *testing.T) {
	service := &stubCartService{
		addWishFn: func(context.Context, string, services.WishlistItem) (bool, error) {
			return false, services.ErrWishlistLimitReached
		},
	}

	handler := NewWishlistHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/wishlist", handler.Routes)

	body := []byte(`{"name":"Linen Shirt","price":1999}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/wishlist/prod_zzz", body))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestWishlistHandlersList(t *testing.T) {
	service := &stubCartService{
		listWishFn: func(context.Context, string, services.Pagination) (domain.CursorPage[services.WishlistItem], error) {
			return domain.CursorPage[services.WishlistItem]{
				Items:         []services.WishlistItem{{ProductID: "prod_a", Name: "Linen Shirt", Price: 1999}},
				NextPageToken: "tok",
			}, nil
		},
	}

	handler := NewWishlistHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/wishlist", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/wishlist", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp wishlistListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "tok" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestWishlistHandlersRemoveItem(t *testing.T) {
	removed := ""
	service := &stubCartService{
		delWishFn: func(_ context.Context, _ string, productID string) error {
			removed = productID
			return nil
		},
	}

	handler := NewWishlistHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/wishlist", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodDelete, "/wishlist/prod_a", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if removed != "prod_a" {
		t.Fatalf("expected prod_a removed, got %s", removed)
	}
}
