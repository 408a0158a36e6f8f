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
	maxReturnBodySize    = 16 * 1024
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderHandlers exposes authenticated order endpoints for the current user.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs handlers enforcing Firebase authentication before invoking the order service.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderCode}", h.getOrder)
	r.Post("/{orderCode}/return", h.fileReturn)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}

	pager, err := parsePagination(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrdersForUser(ctx, uid, pager)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, nil))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order code is required", http.StatusBadRequest))
		return
	}

	order, items, err := h.orders.GetOrderByCode(ctx, code)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	// Customers only ever see their own orders; hide foreign ones entirely.
	if order.UserID != uid {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, items)})
}

func (h *OrderHandlers) fileReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireOrderIdentity(ctx, w)
	if !ok {
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order code is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxReturnBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req fileReturnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	order, _, err := h.orders.GetOrderByCode(ctx, code)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	if order.UserID != uid {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	ret, err := h.orders.FileReturn(ctx, services.FileReturnCommand{
		OrderID: order.ID,
		UserID:  uid,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(ret)})
}

func (h *OrderHandlers) requireOrderIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	writeOrderServiceError(ctx, w, err)
}

func writeOrderServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
		return
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
		return
	case errors.Is(err, services.ErrTrackingDetailsRequired):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_details_required", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrRefundAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("refund_amount_mismatch", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		case repoErr.IsConflict():
			httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
			return
		}
	}

	httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "orders are temporarily unavailable", http.StatusServiceUnavailable))
}

type fileReturnRequest struct {
	Reason string `json:"reason"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	Code            string             `json:"code"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	CouponCode      *string            `json:"coupon_code,omitempty"`
	Currency        string             `json:"currency"`
	Subtotal        int64              `json:"subtotal"`
	Discount        int64              `json:"discount"`
	Total           int64              `json:"total"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	TrackingCode    *string            `json:"tracking_code,omitempty"`
	Carrier         *string            `json:"carrier,omitempty"`
	Items           []orderItemPayload `json:"items,omitempty"`
	CreatedAt       string             `json:"created_at,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
	ShippedAt       string             `json:"shipped_at,omitempty"`
	DeliveredAt     string             `json:"delivered_at,omitempty"`
	CancelledAt     string             `json:"cancelled_at,omitempty"`
	RefundedAt      string             `json:"refunded_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	LineTotal int64   `json:"line_total"`
	ImageURL  *string `json:"image_url,omitempty"`
}

type addressPayload struct {
	Recipient  string  `json:"recipient,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

type returnPayload struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	OrderCode  string `json:"order_code,omitempty"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
	RefundedAt string `json:"refunded_at,omitempty"`
}

func buildOrderPayload(order domain.Order, items []domain.OrderItem) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		Code:          order.Code,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: order.PaymentMethod,
		CouponCode:    cloneStringPointer(order.CouponCode),
		Currency:      strings.ToUpper(order.Currency),
		Subtotal:      order.Subtotal,
		Discount:      order.Discount,
		Total:         order.Total,
		ShippingAddress: addressPayload{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      cloneStringPointer(order.ShippingAddress.Line2),
			City:       order.ShippingAddress.City,
			State:      cloneStringPointer(order.ShippingAddress.State),
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      cloneStringPointer(order.ShippingAddress.Phone),
		},
		TrackingCode: cloneStringPointer(order.TrackingCode),
		Carrier:      cloneStringPointer(order.Carrier),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
		ShippedAt:    formatTimePtr(order.ShippedAt),
		DeliveredAt:  formatTimePtr(order.DeliveredAt),
		CancelledAt:  formatTimePtr(order.CancelledAt),
		RefundedAt:   formatTimePtr(order.RefundedAt),
	}
	for _, item := range items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			ImageURL:  cloneStringPointer(item.ImageURL),
		})
	}
	return payload
}

func buildReturnPayload(ret domain.Return) returnPayload {
	return returnPayload{
		ID:         ret.ID,
		OrderID:    ret.OrderID,
		OrderCode:  ret.OrderCode,
		Reason:     ret.Reason,
		Status:     string(ret.Status),
		CreatedAt:  formatTime(ret.CreatedAt),
		UpdatedAt:  formatTime(ret.UpdatedAt),
		RefundedAt: formatTimePtr(ret.RefundedAt),
	}
}
