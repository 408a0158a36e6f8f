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

type stubCouponAdminService struct {
	validateFn func(context.Context, string, int64) (services.CouponQuote, error)
	createFn   func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	listFn     func(context.Context, services.CouponListFilter) (domain.CursorPage[services.Coupon], error)
}

func (s *stubCouponAdminService) Validate(ctx context.Context, code string, subtotal int64) (services.CouponQuote, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, code, subtotal)
	}
	return services.CouponQuote{}, errors.New("not implemented")
}

func (s *stubCouponAdminService) RedeemAtCheckout(context.Context, string) error {
	return errors.New("not implemented")
}

func (s *stubCouponAdminService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponAdminService) ListCoupons(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Coupon]{}, nil
}

func adminRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}))
}

func TestAdminHandlersListOrdersStatusFilter(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{deliveredOrder()}}, nil
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?status=delivered&page_size=25", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered filter, got %#v", captured.Status)
	}
	if captured.Pagination.PageSize != 25 {
		t.Fatalf("expected page size 25, got %d", captured.Pagination.PageSize)
	}
}

func TestAdminHandlersListOrdersRejectsUnknownStatus(t *testing.T) {
	handler := NewAdminHandlers(nil, &stubOrderService{}, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?status=sideways", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersTransitionRequiresConfirmation(t *testing.T) {
	called := false
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			called = true
			return services.Order{}, nil
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"status":"processing"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord_abc/status", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without confirm, got %d", rr.Code)
	}
	if called {
		t.Fatalf("expected transition not to be invoked")
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Error != "confirmation_required" {
		t.Fatalf("expected confirmation_required, got %s", payload.Error)
	}
}

func TestAdminHandlersTransitionSuccess(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	updated := deliveredOrder()
	updated.Status = domain.OrderStatusProcessing
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			return updated, nil
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"status":"processing","confirm":true}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord_abc/status", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_abc" || captured.TargetStatus != domain.OrderStatusProcessing {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.ActorID != "staff-1" {
		t.Fatalf("expected actor staff-1, got %s", captured.ActorID)
	}
}

func TestAdminHandlersTransitionShippedPassesTracking(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			return deliveredOrder(), nil
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"status":"shipped","confirm":true,"tracking_code":"AWB123","carrier":"Delhivery"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord_abc/status", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.TrackingCode != "AWB123" || captured.Carrier != "Delhivery" {
		t.Fatalf("unexpected tracking details: %#v", captured)
	}
}

func TestAdminHandlersTransitionRefundMismatch(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrRefundAmountMismatch
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"status":"refunded","confirm":true,"refund_amount":"100"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord_abc/status", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Error != "refund_amount_mismatch" {
		t.Fatalf("expected refund_amount_mismatch, got %s", payload.Error)
	}
}

func TestAdminHandlersTransitionInvalidState(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"status":"delivered","confirm":true}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord_abc/status", body))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAdminHandlersUpdateTracking(t *testing.T) {
	var captured services.UpdateTrackingCommand
	orders := &stubOrderService{
		trackingFn: func(_ context.Context, cmd services.UpdateTrackingCommand) (services.Order, error) {
			captured = cmd
			return deliveredOrder(), nil
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"tracking_code":"AWB999","carrier":"BlueDart"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/ord_abc/tracking", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.TrackingCode != "AWB999" || captured.Carrier != "BlueDart" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestAdminHandlersListReturns(t *testing.T) {
	orders := &stubOrderService{
		listReturnsFn: func(context.Context, services.Pagination) (domain.CursorPage[services.Return], error) {
			return domain.CursorPage[services.Return]{Items: []services.Return{{
				ID:        "ret_1",
				OrderID:   "ord_abc",
				OrderCode: "SF1769940000000",
				Reason:    "wrong size",
				Status:    domain.ReturnStatusRequested,
			}}}, nil
		},
	}

	handler := NewAdminHandlers(nil, orders, &stubCouponAdminService{})
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/returns", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp returnListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Reason != "wrong size" {
		t.Fatalf("unexpected returns: %#v", resp.Items)
	}
}

func TestAdminHandlersCreateCouponSuccess(t *testing.T) {
	var captured services.UpsertCouponCommand
	coupons := &stubCouponAdminService{
		createFn: func(_ context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
			captured = cmd
			return services.Coupon{
				ID:        "cpn_1",
				Code:      cmd.Code,
				Status:    domain.CouponStatusActive,
				Percent:   cmd.Percent,
				ValidFrom: cmd.ValidFrom,
			}, nil
		},
	}

	handler := NewAdminHandlers(nil, &stubOrderService{}, coupons)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"code":"WELCOME10","percent":10,"valid_from":"2026-02-01T00:00:00Z","valid_until":"2026-03-01T00:00:00Z","max_uses":500}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/coupons", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Code != "WELCOME10" || captured.Percent != 10 {
		t.Fatalf("unexpected command: %#v", captured)
	}
	expectedFrom := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !captured.ValidFrom.Equal(expectedFrom) {
		t.Fatalf("expected valid from %s, got %s", expectedFrom, captured.ValidFrom)
	}
	if captured.MaxUses == nil || *captured.MaxUses != 500 {
		t.Fatalf("expected max uses 500, got %#v", captured.MaxUses)
	}
}

func TestAdminHandlersCreateCouponConflict(t *testing.T) {
	coupons := &stubCouponAdminService{
		createFn: func(context.Context, services.UpsertCouponCommand) (services.Coupon, error) {
			return services.Coupon{}, services.ErrCouponConflict
		},
	}

	handler := NewAdminHandlers(nil, &stubOrderService{}, coupons)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	body := []byte(`{"code":"WELCOME10","percent":10}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/coupons", body))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAdminHandlersListCouponsStatusFilter(t *testing.T) {
	var captured services.CouponListFilter
	coupons := &stubCouponAdminService{
		listFn: func(_ context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error) {
			captured = filter
			return domain.CursorPage[services.Coupon]{}, nil
		},
	}

	handler := NewAdminHandlers(nil, &stubOrderService{}, coupons)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/coupons?status=active,scheduled", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(captured.Status) != 2 {
		t.Fatalf("expected 2 status filters, got %#v", captured.Status)
	}
}
