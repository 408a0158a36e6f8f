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
	"github.com/stitchfield/api/internal/services"
)

const maxCheckoutBodySize = 64 * 1024

// CheckoutHandlers accepts the payment gateway callback and records orders.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs handlers for the gateway callback. The
// callback accepts guest checkouts, so authentication is optional: an
// identity is attached when a token is presented and the order is keyed by
// email otherwise.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Post("/callback", h.paymentCallback)
}

func (h *CheckoutHandlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	uid := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		uid = strings.TrimSpace(identity.UID)
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyReadError(ctx, w, err)
		return
	}

	var req paymentCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := req.toCommand(uid)
	order, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		// A partially recorded order still captured the payment; surface the
		// header so the customer sees a confirmation while support repairs
		// the missing lines.
		if errors.Is(err, services.ErrOrderPartiallyRecorded) {
			writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order, nil)})
			return
		}
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order, order.Items)})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment could not be verified", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrCouponInvalidCode),
		errors.Is(err, services.ErrCouponNotYetActive),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponUsageLimit):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
		return
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrOrderCreationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("order_creation_failed", "order could not be recorded; the payment was not consumed", http.StatusServiceUnavailable))
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
}

type paymentCallbackRequest struct {
	GatewayOrderID   string                 `json:"gateway_order_id"`
	GatewayPaymentID string                 `json:"gateway_payment_id"`
	Signature        string                 `json:"signature"`
	Email            string                 `json:"email"`
	CouponCode       string                 `json:"coupon_code"`
	Currency         string                 `json:"currency"`
	Items            []checkoutItemPayload  `json:"items"`
	ShippingAddress  checkoutAddressPayload `json:"shipping_address"`
}

type checkoutItemPayload struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	ImageURL  *string `json:"image_url"`
}

type checkoutAddressPayload struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2"`
	City       string  `json:"city"`
	State      *string `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone"`
}

func (req paymentCallbackRequest) toCommand(uid string) services.PlaceOrderCommand {
	cmd := services.PlaceOrderCommand{
		UserID:           uid,
		Email:            strings.TrimSpace(req.Email),
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
		CouponCode:       strings.TrimSpace(req.CouponCode),
		Currency:         strings.TrimSpace(req.Currency),
		ShippingAddress: domain.Address{
			Recipient:  strings.TrimSpace(req.ShippingAddress.Recipient),
			Line1:      strings.TrimSpace(req.ShippingAddress.Line1),
			Line2:      cloneStringPointer(req.ShippingAddress.Line2),
			City:       strings.TrimSpace(req.ShippingAddress.City),
			State:      cloneStringPointer(req.ShippingAddress.State),
			PostalCode: strings.TrimSpace(req.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(req.ShippingAddress.Country),
			Phone:      cloneStringPointer(req.ShippingAddress.Phone),
		},
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.PlaceOrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  cloneStringPointer(item.ImageURL),
		})
	}
	return cmd
}
