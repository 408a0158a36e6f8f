package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/platform/auth"
	"github.com/stitchfield/api/internal/platform/httpx"
	"github.com/stitchfield/api/internal/repositories"
	"github.com/stitchfield/api/internal/services"
)

const (
	maxAdminBodySize      = 32 * 1024
	defaultAdminPageSize  = 50
	maxAdminPageSize      = 200
	defaultReturnPageSize = 50
)

// AdminHandlers exposes back-office endpoints for operators.
type AdminHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	coupons services.CouponService
}

// NewAdminHandlers constructs handlers restricted to staff and admin roles.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, coupons services.CouponService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		orders:  orders,
		coupons: coupons,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderId}", h.getOrder)
	r.Post("/orders/{orderId}/status", h.transitionStatus)
	r.Put("/orders/{orderId}/tracking", h.updateTracking)
	r.Get("/returns", h.listReturns)
	r.Get("/coupons", h.listCoupons)
	r.Post("/coupons", h.createCoupon)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireOrders(ctx, w) {
		return
	}

	pager, err := parsePagination(r, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{Pagination: pager}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		if !isKnownOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status filter", http.StatusBadRequest))
			return
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		filter.UserID = &raw
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, nil))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireOrders(ctx, w) {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, items, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, items)})
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireOrders(ctx, w) {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req transitionStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	// Status changes are irreversible for customers, so the console must
	// send an explicit confirmation with every transition request.
	if !req.Confirm {
		httpx.WriteError(ctx, w, httpx.NewError("confirmation_required", "status changes require confirm set to true", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
		TrackingCode: strings.TrimSpace(req.TrackingCode),
		Carrier:      strings.TrimSpace(req.Carrier),
		RefundAmount: strings.TrimSpace(req.RefundAmount),
		ActorID:      actorIDFromContext(ctx),
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, nil)})
}

func (h *AdminHandlers) updateTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireOrders(ctx, w) {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req updateTrackingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateTracking(ctx, services.UpdateTrackingCommand{
		OrderID:      orderID,
		TrackingCode: strings.TrimSpace(req.TrackingCode),
		Carrier:      strings.TrimSpace(req.Carrier),
		ActorID:      actorIDFromContext(ctx),
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, nil)})
}

func (h *AdminHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireOrders(ctx, w) {
		return
	}

	pager, err := parsePagination(r, defaultReturnPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListReturns(ctx, pager)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	items := make([]returnPayload, 0, len(page.Items))
	for _, ret := range page.Items {
		items = append(items, buildReturnPayload(ret))
	}
	writeJSONResponse(w, http.StatusOK, returnListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireCoupons(ctx, w) {
		return
	}

	pager, err := parsePagination(r, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.CouponListFilter{Pagination: pager}
	for _, raw := range r.URL.Query()["status"] {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			status := domain.CouponStatus(value)
			switch status {
			case domain.CouponStatusActive, domain.CouponStatusScheduled, domain.CouponStatusDisabled:
				filter.Status = append(filter.Status, status)
			default:
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown coupon status filter", http.StatusBadRequest))
				return
			}
		}
	}

	page, err := h.coupons.ListCoupons(ctx, filter)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireCoupons(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req createCouponRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.UpsertCouponCommand{
		Code:    strings.TrimSpace(req.Code),
		Percent: req.Percent,
		Status:  domain.CouponStatus(strings.TrimSpace(req.Status)),
		MaxUses: req.MaxUses,
		ActorID: actorIDFromContext(ctx),
	}
	if req.ValidFrom != "" {
		parsed, err := time.Parse(time.RFC3339, req.ValidFrom)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "valid_from must be RFC3339", http.StatusBadRequest))
			return
		}
		cmd.ValidFrom = parsed
	}
	if req.ValidUntil != "" {
		parsed, err := time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "valid_until must be RFC3339", http.StatusBadRequest))
			return
		}
		cmd.ValidUntil = parsed
	}

	coupon, err := h.coupons.CreateCoupon(ctx, cmd)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *AdminHandlers) requireOrders(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminHandlers) requireCoupons(ctx context.Context, w http.ResponseWriter) bool {
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminHandlers) writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", "coupon code already exists", http.StatusConflict))
		return
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrCouponInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("coupons_unavailable", "coupons are temporarily unavailable", http.StatusServiceUnavailable))
}

func actorIDFromContext(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	return identity.UID
}

func isKnownOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusReturn,
		domain.OrderStatusRefunded:
		return true
	}
	return false
}

type transitionStatusRequest struct {
	Status       string `json:"status"`
	Confirm      bool   `json:"confirm"`
	TrackingCode string `json:"tracking_code"`
	Carrier      string `json:"carrier"`
	RefundAmount string `json:"refund_amount"`
}

type updateTrackingRequest struct {
	TrackingCode string `json:"tracking_code"`
	Carrier      string `json:"carrier"`
}

type createCouponRequest struct {
	Code       string `json:"code"`
	Percent    int    `json:"percent"`
	Status     string `json:"status"`
	ValidFrom  string `json:"valid_from"`
	ValidUntil string `json:"valid_until"`
	MaxUses    *int   `json:"max_uses"`
}

type returnListResponse struct {
	Items         []returnPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponListResponse struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponPayload struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Status     string `json:"status"`
	Percent    int    `json:"percent"`
	ValidFrom  string `json:"valid_from,omitempty"`
	ValidUntil string `json:"valid_until,omitempty"`
	MaxUses    *int   `json:"max_uses,omitempty"`
	Uses       int    `json:"uses"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func buildCouponPayload(coupon domain.Coupon) couponPayload {
	payload := couponPayload{
		ID:        coupon.ID,
		Code:      coupon.Code,
		Status:    string(coupon.Status),
		Percent:   coupon.Percent,
		Uses:      coupon.Uses,
		CreatedAt: formatTime(coupon.CreatedAt),
		UpdatedAt: formatTime(coupon.UpdatedAt),
	}
	if coupon.MaxUses != nil {
		maxUses := *coupon.MaxUses
		payload.MaxUses = &maxUses
	}
	if !coupon.ValidFrom.IsZero() {
		payload.ValidFrom = formatTime(coupon.ValidFrom)
	}
	if !coupon.ValidUntil.IsZero() {
		payload.ValidUntil = formatTime(coupon.ValidUntil)
	}
	return payload
}
