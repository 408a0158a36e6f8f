package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/platform/auth"
	"github.com/stitchfield/api/internal/platform/httpx"
	"github.com/stitchfield/api/internal/repositories"
	"github.com/stitchfield/api/internal/services"
)

const (
	maxWishlistBodySize     = 8 * 1024
	defaultWishlistPageSize = 20
	maxWishlistPageSize     = 100
)

// WishlistHandlers exposes authenticated wishlist endpoints for the current user.
type WishlistHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewWishlistHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewWishlistHandlers(authn *auth.Authenticator, carts services.CartService) *WishlistHandlers {
	return &WishlistHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /me/wishlist endpoints onto the provided router.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listWishlist)
	r.Put("/{productId}", h.addItem)
	r.Delete("/{productId}", h.removeItem)
}

func (h *WishlistHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireWishlistIdentity(ctx, w)
	if !ok {
		return
	}

	pager, err := parsePagination(r, defaultWishlistPageSize, maxWishlistPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.carts.ListWishlist(ctx, uid, pager)
	if err != nil {
		h.writeWishlistError(ctx, w, err)
		return
	}

	items := make([]wishlistItemPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildWishlistItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, wishlistListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *WishlistHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireWishlistIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxWishlistBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req wishlistAddRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	item := domain.WishlistItem{
		ProductID: productID,
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		ImageURL:  cloneStringPointer(req.ImageURL),
	}

	created, err := h.carts.AddToWishlist(ctx, uid, item)
	if err != nil {
		h.writeWishlistError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, wishlistItemResponse{Item: buildWishlistItemPayload(item), Created: created})
}

func (h *WishlistHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireWishlistIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.carts.RemoveFromWishlist(ctx, uid, productID); err != nil {
		h.writeWishlistError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WishlistHandlers) requireWishlistIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *WishlistHandlers) writeWishlistError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrWishlistLimitReached):
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_limit_reached", "wishlist limit reached", http.StatusConflict))
		return
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_item_not_found", "wishlist item not found", http.StatusNotFound))
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("wishlist_unavailable", "wishlist is temporarily unavailable", http.StatusServiceUnavailable))
}

type wishlistAddRequest struct {
	Name     string  `json:"name"`
	Price    int64   `json:"price"`
	ImageURL *string `json:"image_url"`
}

type wishlistListResponse struct {
	Items         []wishlistItemPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type wishlistItemResponse struct {
	Item    wishlistItemPayload `json:"item"`
	Created bool                `json:"created"`
}

type wishlistItemPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     int64   `json:"price"`
	ImageURL  *string `json:"image_url,omitempty"`
	AddedAt   string  `json:"added_at,omitempty"`
}

func buildWishlistItemPayload(item domain.WishlistItem) wishlistItemPayload {
	return wishlistItemPayload{
		ProductID: item.ProductID,
		Name:      item.Name,
		Price:     item.Price,
		ImageURL:  cloneStringPointer(item.ImageURL),
		AddedAt:   formatTime(item.AddedAt),
	}
}
