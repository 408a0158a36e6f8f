package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/payments"
	"github.com/stitchfield/api/internal/repositories"
)

const (
	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	paymentMethodRazorpay = "razorpay"
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrPaymentVerificationFailed indicates the gateway callback could not be authenticated.
	ErrPaymentVerificationFailed = errors.New("checkout: payment verification failed")
	// ErrOrderCreationFailed indicates the order header could not be written. No
	// downstream effects have taken place when this is returned.
	ErrOrderCreationFailed = errors.New("checkout: order creation failed")
	// ErrOrderPartiallyRecorded indicates the order header exists but its line
	// items could not be written.
	ErrOrderPartiallyRecorded = errors.New("checkout: order recorded without line items")
)

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Verifier    payments.Verifier
	Orders      repositories.OrderRepository
	OrderItems  repositories.OrderItemRepository
	Coupons     CouponService
	Inventory   InventoryService
	Mailer      ConfirmationMailer
	Events      OrderEventPublisher
	CodePrefix  string
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	verifier   payments.Verifier
	orders     repositories.OrderRepository
	items      repositories.OrderItemRepository
	coupons    CouponService
	inventory  InventoryService
	mailer     ConfirmationMailer
	events     OrderEventPublisher
	codePrefix string
	currency   string
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Verifier == nil {
		return nil, errors.New("checkout service: payment verifier is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.OrderItems == nil {
		return nil, errors.New("checkout service: order item repository is required")
	}

	codePrefix := strings.TrimSpace(deps.CodePrefix)
	if codePrefix == "" {
		codePrefix = "SF"
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		verifier:   deps.Verifier,
		orders:     deps.Orders,
		items:      deps.OrderItems,
		coupons:    deps.Coupons,
		inventory:  deps.Inventory,
		mailer:     deps.Mailer,
		events:     deps.Events,
		codePrefix: codePrefix,
		currency:   currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// PlaceOrder turns a verified gateway callback into a persisted order. The
// pipeline runs sequentially: verify, write the order header, write line
// items, adjust stock, redeem the coupon, send the confirmation mail, and
// publish the created event. Stock, coupon, mail, and event failures are
// logged without failing the order.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	if err := validatePlaceOrder(cmd); err != nil {
		return Order{}, err
	}

	if err := s.verifier.Verify(payments.Callback{
		OrderID:   cmd.GatewayOrderID,
		PaymentID: cmd.GatewayPaymentID,
		Signature: cmd.Signature,
	}); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrPaymentVerificationFailed, err)
	}

	now := s.clock()
	subtotal := int64(0)
	for _, line := range cmd.Items {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}

	var (
		discount   int64
		couponCode *string
	)
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		if s.coupons == nil {
			return Order{}, fmt.Errorf("%w: coupon %q cannot be honoured", ErrCheckoutInvalidInput, code)
		}
		quote, err := s.coupons.Validate(ctx, code, subtotal)
		if err != nil {
			return Order{}, err
		}
		discount = quote.Discount
		couponCode = &quote.Code
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	order := Order{
		ID:               orderIDPrefix + s.newID(),
		Code:             fmt.Sprintf("%s%d", s.codePrefix, now.UnixMilli()),
		UserID:           strings.TrimSpace(cmd.UserID),
		Email:            strings.TrimSpace(cmd.Email),
		Status:           domain.OrderStatusConfirmed,
		PaymentStatus:    domain.PaymentStatusPaid,
		PaymentMethod:    paymentMethodRazorpay,
		GatewayOrderID:   strings.TrimSpace(cmd.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(cmd.GatewayPaymentID),
		CouponCode:       couponCode,
		Currency:         currency,
		Subtotal:         subtotal,
		Discount:         discount,
		Total:            domain.PayableTotal(subtotal, discount),
		ShippingAddress:  cmd.ShippingAddress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	items := make([]OrderItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		items = append(items, OrderItem{
			ID:        orderItemIDPrefix + s.newID(),
			OrderID:   order.ID,
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			Size:      strings.TrimSpace(line.Size),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.UnitPrice * int64(line.Quantity),
			ImageURL:  line.ImageURL,
		})
	}
	order.Items = items

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}
	if err := s.items.InsertMany(ctx, order.ID, items); err != nil {
		return order, fmt.Errorf("%w: %w", ErrOrderPartiallyRecorded, err)
	}

	if s.inventory != nil {
		if err := s.inventory.DeductForOrder(ctx, items); err != nil {
			s.logger(ctx, "checkout.stock.deduct_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	if couponCode != nil {
		if err := s.coupons.RedeemAtCheckout(ctx, *couponCode); err != nil {
			s.logger(ctx, "checkout.coupon.redeem_failed", map[string]any{
				"orderId": order.ID,
				"code":    *couponCode,
				"error":   err.Error(),
			})
		}
	}

	if s.mailer != nil {
		if err := s.mailer.SendOrderConfirmation(ctx, order, items); err != nil {
			s.logger(ctx, "checkout.mail.send_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	if s.events != nil {
		event := OrderEvent{
			ID:         s.newID(),
			Type:       orderEventCreated,
			OrderID:    order.ID,
			OrderCode:  order.Code,
			UserID:     order.UserID,
			Status:     order.Status,
			OccurredAt: now,
		}
		if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "checkout.event.publish_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	return order, nil
}

// validatePlaceOrder checks the callback payload. UserID is deliberately
// absent: guest checkouts carry no identity and the order is keyed by email.
func validatePlaceOrder(cmd PlaceOrderCommand) error {
	if strings.TrimSpace(cmd.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrCheckoutInvalidInput)
	}
	for i, line := range cmd.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: item %d is missing product id", ErrCheckoutInvalidInput, i)
		}
		if strings.TrimSpace(line.Size) == "" {
			return fmt.Errorf("%w: item %d is missing size", ErrCheckoutInvalidInput, i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has non-positive quantity", ErrCheckoutInvalidInput, i)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d has negative unit price", ErrCheckoutInvalidInput, i)
		}
	}
	if strings.TrimSpace(cmd.ShippingAddress.Line1) == "" || strings.TrimSpace(cmd.ShippingAddress.PostalCode) == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrCheckoutInvalidInput)
	}
	return nil
}
