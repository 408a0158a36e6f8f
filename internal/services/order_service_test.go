package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/repositories"
)

type stubOrderRepo struct {
	orders    map[string]domain.Order
	updated   []domain.Order
	updateErr error
	listPage  domain.CursorPage[domain.Order]
}

func (r *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if r.orders == nil {
		r.orders = map[string]domain.Order{}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.orders[order.ID] = order
	r.updated = append(r.updated, order)
	return nil
}

func (r *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return order, nil
}

func (r *stubOrderRepo) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	for _, order := range r.orders {
		if order.Code == code {
			return order, nil
		}
	}
	return domain.Order{}, stubRepoError{notFound: true}
}

func (r *stubOrderRepo) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	return r.listPage, nil
}

func (r *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.listPage, nil
}

type stubOrderItemRepo struct {
	items     map[string][]domain.OrderItem
	insertErr error
	listErr   error
}

func (r *stubOrderItemRepo) InsertMany(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.items == nil {
		r.items = map[string][]domain.OrderItem{}
	}
	r.items[orderID] = items
	return nil
}

func (r *stubOrderItemRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.items[orderID], nil
}

type stubReturnRepo struct {
	returns   map[string]domain.Return
	updated   []domain.Return
	insertErr error
	updateErr error
}

func (r *stubReturnRepo) Insert(ctx context.Context, ret domain.Return) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.returns == nil {
		r.returns = map[string]domain.Return{}
	}
	r.returns[ret.OrderID] = ret
	return nil
}

func (r *stubReturnRepo) Update(ctx context.Context, ret domain.Return) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.returns[ret.OrderID] = ret
	r.updated = append(r.updated, ret)
	return nil
}

func (r *stubReturnRepo) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	for _, ret := range r.returns {
		if ret.ID == returnID {
			return ret, nil
		}
	}
	return domain.Return{}, stubRepoError{notFound: true}
}

func (r *stubReturnRepo) FindByOrderID(ctx context.Context, orderID string) (domain.Return, error) {
	ret, ok := r.returns[orderID]
	if !ok {
		return domain.Return{}, stubRepoError{notFound: true}
	}
	return ret, nil
}

func (r *stubReturnRepo) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Return], error) {
	items := make([]domain.Return, 0, len(r.returns))
	for _, ret := range r.returns {
		items = append(items, ret)
	}
	return domain.CursorPage[domain.Return]{Items: items}, nil
}

type stubInventory struct {
	deducted  [][]OrderItem
	restocked [][]OrderItem
}

func (s *stubInventory) DeductForOrder(ctx context.Context, items []OrderItem) error {
	s.deducted = append(s.deducted, items)
	return nil
}

func (s *stubInventory) RestockForOrder(ctx context.Context, items []OrderItem) error {
	s.restocked = append(s.restocked, items)
	return nil
}

type stubPublisher struct {
	events []OrderEvent
	err    error
}

func (p *stubPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-1", nil
}

type orderServiceFixture struct {
	svc       OrderService
	orders    *stubOrderRepo
	items     *stubOrderItemRepo
	returns   *stubReturnRepo
	inventory *stubInventory
	publisher *stubPublisher
	now       time.Time
}

func newOrderServiceFixture(t *testing.T, seed ...domain.Order) orderServiceFixture {
	t.Helper()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	orders := &stubOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range seed {
		orders.orders[order.ID] = order
	}
	items := &stubOrderItemRepo{items: map[string][]domain.OrderItem{}}
	returns := &stubReturnRepo{returns: map[string]domain.Return{}}
	inventory := &stubInventory{}
	publisher := &stubPublisher{}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		OrderItems:  items,
		Returns:     returns,
		Inventory:   inventory,
		Events:      publisher,
		Clock:       fixedClock(now),
		IDGenerator: func() string { return "TESTID" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return orderServiceFixture{
		svc:       svc,
		orders:    orders,
		items:     items,
		returns:   returns,
		inventory: inventory,
		publisher: publisher,
		now:       now,
	}
}

func confirmedOrder(id string) domain.Order {
	return domain.Order{
		ID:            id,
		Code:          "SF1757505600000",
		UserID:        "user-1",
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPaid,
		Total:         2699,
	}
}

func TestTransitionStatusHappyPath(t *testing.T) {
	order := confirmedOrder("ord_1")
	fx := newOrderServiceFixture(t, order)

	updated, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusProcessing,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Fatalf("status = %s, want processing", updated.Status)
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].Type != "order.status.changed" {
		t.Fatalf("events = %+v", fx.publisher.events)
	}
}

func TestTransitionStatusRejectsInvalidMoves(t *testing.T) {
	cases := []struct {
		name    string
		current domain.OrderStatus
		target  domain.OrderStatus
	}{
		{"confirmed to shipped", domain.OrderStatusConfirmed, domain.OrderStatusShipped},
		{"confirmed to delivered", domain.OrderStatusConfirmed, domain.OrderStatusDelivered},
		{"shipped to cancelled", domain.OrderStatusShipped, domain.OrderStatusCancelled},
		{"cancelled to processing", domain.OrderStatusCancelled, domain.OrderStatusProcessing},
		{"refunded to processing", domain.OrderStatusRefunded, domain.OrderStatusProcessing},
		{"delivered to refunded", domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := confirmedOrder("ord_1")
			order.Status = tc.current
			fx := newOrderServiceFixture(t, order)

			_, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      "ord_1",
				TargetStatus: tc.target,
				TrackingCode: "TRK1",
				Carrier:      "bluedart",
				RefundAmount: "2699",
			})
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("TransitionStatus = %v, want ErrOrderInvalidState", err)
			}
			if len(fx.orders.updated) != 0 {
				t.Fatalf("order was updated on invalid transition")
			}
		})
	}
}

func TestTransitionStatusRejectsDirectReturnTarget(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusDelivered
	fx := newOrderServiceFixture(t, order)

	_, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusReturn,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("TransitionStatus = %v, want ErrOrderInvalidState", err)
	}
}

func TestTransitionToShippedRequiresTrackingDetails(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusProcessing
	fx := newOrderServiceFixture(t, order)

	_, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusShipped,
		TrackingCode: "TRK1",
	})
	if !errors.Is(err, ErrTrackingDetailsRequired) {
		t.Fatalf("TransitionStatus = %v, want ErrTrackingDetailsRequired", err)
	}

	updated, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusShipped,
		TrackingCode: "TRK1",
		Carrier:      "bluedart",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.TrackingCode == nil || *updated.TrackingCode != "TRK1" {
		t.Fatalf("tracking code = %v", updated.TrackingCode)
	}
	if updated.ShippedAt == nil || !updated.ShippedAt.Equal(fx.now) {
		t.Fatalf("shippedAt = %v", updated.ShippedAt)
	}
}

func TestCancelDoesNotRestock(t *testing.T) {
	order := confirmedOrder("ord_1")
	fx := newOrderServiceFixture(t, order)
	fx.items.items["ord_1"] = []domain.OrderItem{{ProductID: "prod_a", Size: "M", Quantity: 1}}

	updated, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.CancelledAt == nil {
		t.Fatal("cancelledAt not set")
	}
	if len(fx.inventory.restocked) != 0 {
		t.Fatalf("restock ran on cancellation")
	}
}

func TestRefundRequiresMatchingAmount(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusReturn
	fx := newOrderServiceFixture(t, order)

	cases := []string{"", "abc", "2698", "2699.50"}
	for _, amount := range cases {
		_, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
			OrderID:      "ord_1",
			TargetStatus: domain.OrderStatusRefunded,
			RefundAmount: amount,
		})
		if !errors.Is(err, ErrRefundAmountMismatch) {
			t.Fatalf("TransitionStatus(%q) = %v, want ErrRefundAmountMismatch", amount, err)
		}
	}
	if len(fx.orders.updated) != 0 {
		t.Fatal("order mutated on amount mismatch")
	}
}

func TestRefundConfirmsRestocksAndSyncsReturn(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusReturn
	fx := newOrderServiceFixture(t, order)
	fx.items.items["ord_1"] = []domain.OrderItem{{ProductID: "prod_a", Size: "M", Quantity: 2}}
	fx.returns.returns["ord_1"] = domain.Return{ID: "ret_1", OrderID: "ord_1", Status: domain.ReturnStatusRequested}

	updated, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusRefunded,
		RefundAmount: "2,699.00",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusRefunded {
		t.Fatalf("status = %s, want refunded", updated.Status)
	}
	if updated.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("payment status = %s, want refunded", updated.PaymentStatus)
	}
	if updated.RefundedAt == nil {
		t.Fatal("refundedAt not set")
	}
	if len(fx.inventory.restocked) != 1 {
		t.Fatalf("restock calls = %d, want 1", len(fx.inventory.restocked))
	}
	synced := fx.returns.returns["ord_1"]
	if synced.Status != domain.ReturnStatusRefunded {
		t.Fatalf("return status = %s, want refunded", synced.Status)
	}
}

func TestRefundSwallowsReturnSyncFailure(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusReturn
	fx := newOrderServiceFixture(t, order)
	fx.returns.returns["ord_1"] = domain.Return{ID: "ret_1", OrderID: "ord_1", Status: domain.ReturnStatusRequested}
	fx.returns.updateErr = errors.New("boom")

	updated, err := fx.svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusRefunded,
		RefundAmount: "2699",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusRefunded {
		t.Fatalf("status = %s, want refunded despite sync failure", updated.Status)
	}
}

func TestUpdateTrackingOnlyWhileShipped(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusProcessing
	fx := newOrderServiceFixture(t, order)

	_, err := fx.svc.UpdateTracking(context.Background(), UpdateTrackingCommand{
		OrderID:      "ord_1",
		TrackingCode: "TRK2",
		Carrier:      "delhivery",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("UpdateTracking = %v, want ErrOrderInvalidState", err)
	}

	shipped := confirmedOrder("ord_2")
	shipped.Status = domain.OrderStatusShipped
	fx = newOrderServiceFixture(t, shipped)
	updated, err := fx.svc.UpdateTracking(context.Background(), UpdateTrackingCommand{
		OrderID:      "ord_2",
		TrackingCode: "TRK2",
		Carrier:      "delhivery",
	})
	if err != nil {
		t.Fatalf("UpdateTracking: %v", err)
	}
	if updated.Carrier == nil || *updated.Carrier != "delhivery" {
		t.Fatalf("carrier = %v", updated.Carrier)
	}
}

func TestFileReturnRequiresDeliveredOrder(t *testing.T) {
	order := confirmedOrder("ord_1")
	fx := newOrderServiceFixture(t, order)

	_, err := fx.svc.FileReturn(context.Background(), FileReturnCommand{
		OrderID: "ord_1",
		Reason:  "wrong size",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("FileReturn = %v, want ErrOrderInvalidState", err)
	}
}

func TestFileReturnCreatesRequestAndFlipsStatus(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusDelivered
	fx := newOrderServiceFixture(t, order)

	ret, err := fx.svc.FileReturn(context.Background(), FileReturnCommand{
		OrderID: "ord_1",
		UserID:  "user-1",
		Reason:  "wrong size",
	})
	if err != nil {
		t.Fatalf("FileReturn: %v", err)
	}
	if ret.Status != domain.ReturnStatusRequested {
		t.Fatalf("return status = %s", ret.Status)
	}
	if got := fx.orders.orders["ord_1"].Status; got != domain.OrderStatusReturn {
		t.Fatalf("order status = %s, want return", got)
	}
}

func TestFileReturnRejectsDuplicateAndForeignOrders(t *testing.T) {
	order := confirmedOrder("ord_1")
	order.Status = domain.OrderStatusDelivered
	fx := newOrderServiceFixture(t, order)
	fx.returns.returns["ord_1"] = domain.Return{ID: "ret_1", OrderID: "ord_1"}

	if _, err := fx.svc.FileReturn(context.Background(), FileReturnCommand{OrderID: "ord_1", Reason: "x"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("duplicate FileReturn = %v, want ErrOrderConflict", err)
	}

	fx = newOrderServiceFixture(t, order)
	if _, err := fx.svc.FileReturn(context.Background(), FileReturnCommand{OrderID: "ord_1", UserID: "user-2", Reason: "x"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("foreign FileReturn = %v, want ErrOrderNotFound", err)
	}
}

func TestGetOrderReturnsItems(t *testing.T) {
	order := confirmedOrder("ord_1")
	fx := newOrderServiceFixture(t, order)
	fx.items.items["ord_1"] = []domain.OrderItem{{ID: "itm_1", OrderID: "ord_1"}}

	got, items, err := fx.svc.GetOrder(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.ID != "ord_1" || len(items) != 1 {
		t.Fatalf("order = %s items = %d", got.ID, len(items))
	}

	if _, _, err := fx.svc.GetOrder(context.Background(), "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("GetOrder(missing) = %v, want ErrOrderNotFound", err)
	}
}
