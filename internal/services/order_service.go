package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventReturnFiled   = "order.return.filed"

	returnIDPrefix = "ret_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate or concurrent updates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrTrackingDetailsRequired indicates a ship attempt without tracking code or carrier.
	ErrTrackingDetailsRequired = errors.New("order: tracking code and carrier are required")
	// ErrRefundAmountMismatch indicates the operator-entered amount does not match the order total.
	ErrRefundAmountMismatch = errors.New("order: refund amount mismatch")
)

// orderStateTransitions describes the statuses TransitionStatus may move
// between. The return status is deliberately absent as a target: it is only
// entered through FileReturn.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {domain.OrderStatusCancelled},
	domain.OrderStatusReturn:     {domain.OrderStatusRefunded, domain.OrderStatusCancelled},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	OrderItems  repositories.OrderItemRepository
	Returns     repositories.ReturnRepository
	Inventory   InventoryService
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	items     repositories.OrderItemRepository
	returns   repositories.ReturnRepository
	inventory InventoryService
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.OrderItems == nil {
		return nil, errors.New("order service: order item repository is required")
	}
	if deps.Returns == nil {
		return nil, errors.New("order service: return repository is required")
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

	return &orderService{
		orders:    deps.Orders,
		items:     deps.OrderItems,
		returns:   deps.Returns,
		inventory: deps.Inventory,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, []OrderItem, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, nil, s.mapRepositoryError(err)
	}
	items, err := s.items.ListByOrder(ctx, order.ID)
	if err != nil {
		return Order{}, nil, s.mapRepositoryError(err)
	}
	return order, items, nil
}

func (s *orderService) GetOrderByCode(ctx context.Context, code string) (Order, []OrderItem, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Order{}, nil, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByCode(ctx, trimmed)
	if err != nil {
		return Order{}, nil, s.mapRepositoryError(err)
	}
	items, err := s.items.ListByOrder(ctx, order.ID)
	if err != nil {
		return Order{}, nil, s.mapRepositoryError(err)
	}
	return order, items, nil
}

func (s *orderService) ListOrdersForUser(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByUser(ctx, uid, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// TransitionStatus moves an order along the lifecycle. Shipping requires
// tracking details, refunds require a matching operator-entered amount, and
// every other transition must appear in the state table.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	switch target {
	case domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered,
		domain.OrderStatusCancelled, domain.OrderStatusRefunded:
	case domain.OrderStatusConfirmed, domain.OrderStatusReturn:
		return Order{}, fmt.Errorf("%w: status %q cannot be set directly", ErrOrderInvalidState, target)
	default:
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	now := s.clock()
	previous := order.Status

	switch target {
	case domain.OrderStatusShipped:
		tracking := strings.TrimSpace(cmd.TrackingCode)
		carrier := strings.TrimSpace(cmd.Carrier)
		if tracking == "" || carrier == "" {
			return Order{}, ErrTrackingDetailsRequired
		}
		order.TrackingCode = &tracking
		order.Carrier = &carrier
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		// Stock is not restored on cancellation.
		order.CancelledAt = &now
	case domain.OrderStatusRefunded:
		entered, err := domain.ParseOperatorAmount(cmd.RefundAmount)
		if err != nil {
			return Order{}, fmt.Errorf("%w: unparseable amount %q", ErrRefundAmountMismatch, cmd.RefundAmount)
		}
		if !domain.AmountMatchesTotal(entered, order.Total) {
			return Order{}, fmt.Errorf("%w: entered %.2f, order total %d", ErrRefundAmountMismatch, entered, order.Total)
		}
		order.PaymentStatus = domain.PaymentStatusRefunded
		order.RefundedAt = &now
	}

	order.Status = target
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if target == domain.OrderStatusRefunded {
		s.syncReturnRefunded(ctx, order, now)
		s.restockRefundedItems(ctx, order)
	}

	s.publishEvent(ctx, OrderEvent{
		ID:         s.newID(),
		Type:       orderEventStatusChanged,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		UserID:     order.UserID,
		Status:     order.Status,
		OccurredAt: now,
	})
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(target),
		"actorId": cmd.ActorID,
	})
	return order, nil
}

// UpdateTracking edits tracking details. Only shipped orders accept edits.
func (s *orderService) UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	tracking := strings.TrimSpace(cmd.TrackingCode)
	carrier := strings.TrimSpace(cmd.Carrier)
	if tracking == "" || carrier == "" {
		return Order{}, ErrTrackingDetailsRequired
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusShipped {
		return Order{}, fmt.Errorf("%w: tracking editable only while shipped, order is %s", ErrOrderInvalidState, order.Status)
	}

	order.TrackingCode = &tracking
	order.Carrier = &carrier
	order.UpdatedAt = s.clock()
	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// FileReturn opens a return request against a delivered order and moves the
// order into the return status.
func (s *orderService) FileReturn(ctx context.Context, cmd FileReturnCommand) (Return, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Return{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Return{}, fmt.Errorf("%w: return reason is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Return{}, s.mapRepositoryError(err)
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" && order.UserID != uid {
		return Return{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, id)
	}
	if order.Status != domain.OrderStatusDelivered {
		return Return{}, fmt.Errorf("%w: returns require a delivered order, order is %s", ErrOrderInvalidState, order.Status)
	}

	if _, err := s.returns.FindByOrderID(ctx, order.ID); err == nil {
		return Return{}, fmt.Errorf("%w: return already filed for order %s", ErrOrderConflict, order.ID)
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return Return{}, s.mapRepositoryError(err)
		}
	}

	now := s.clock()
	ret := Return{
		ID:        returnIDPrefix + s.newID(),
		OrderID:   order.ID,
		OrderCode: order.Code,
		UserID:    order.UserID,
		Reason:    reason,
		Status:    domain.ReturnStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.returns.Insert(ctx, ret); err != nil {
		return Return{}, s.mapRepositoryError(err)
	}

	order.Status = domain.OrderStatusReturn
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return Return{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		ID:         s.newID(),
		Type:       orderEventReturnFiled,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		UserID:     order.UserID,
		Status:     order.Status,
		OccurredAt: now,
	})
	return ret, nil
}

func (s *orderService) ListReturns(ctx context.Context, pager Pagination) (domain.CursorPage[Return], error) {
	page, err := s.returns.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Return]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// syncReturnRefunded marks the open return as refunded. Failures are logged
// and swallowed so a missing or stale return cannot undo the refund itself.
func (s *orderService) syncReturnRefunded(ctx context.Context, order Order, now time.Time) {
	ret, err := s.returns.FindByOrderID(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "order.refund.return_sync_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	ret.Status = domain.ReturnStatusRefunded
	ret.RefundedAt = &now
	ret.UpdatedAt = now
	if err := s.returns.Update(ctx, ret); err != nil {
		s.logger(ctx, "order.refund.return_sync_failed", map[string]any{
			"orderId":  order.ID,
			"returnId": ret.ID,
			"error":    err.Error(),
		})
	}
}

// restockRefundedItems puts refunded quantities back on the shelf. The
// inventory service swallows per-product failures; a failure to even load
// the lines is logged here.
func (s *orderService) restockRefundedItems(ctx context.Context, order Order) {
	if s.inventory == nil {
		return
	}
	items, err := s.items.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "order.refund.restock_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	if err := s.inventory.RestockForOrder(ctx, items); err != nil {
		s.logger(ctx, "order.refund.restock_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return false
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
