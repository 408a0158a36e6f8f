package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stitchfield/api/internal/domain"
	pfirestore "github.com/stitchfield/api/internal/platform/firestore"
	"github.com/stitchfield/api/internal/platform/pagination"
	"github.com/stitchfield/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order headers within Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert stores a new order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, orderID, encodeOrderDocument(order))
	return err
}

// Update overwrites an existing order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.Insert(ctx, order)
}

// FindByID fetches an order by document identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// FindByCode fetches an order by its customer-facing code.
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return domain.Order{}, errors.New("order repository: order code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByCode", status.Errorf(codes.NotFound, "order code %s not found", trimmed))
	}
	return decodeOrderDocument(docs[0].ID, docs[0].Data), nil
}

// ListByUser returns the user's orders ordered by most recent first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}
	return r.list(ctx, repositories.OrderListFilter{UserID: &uid, Pagination: pager})
}

// List returns orders matching the filter ordered by most recent first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter)
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(orderCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	if filter.UserID != nil {
		query = query.Where("userId", "==", strings.TrimSpace(*filter.UserID))
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: %w", err)
		}
		query = query.StartAfter(cursor.Timestamp, cursor.DocID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type orderRow struct {
		order domain.Order
		docID string
	}

	var rows []orderRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		rows = append(rows, orderRow{order: decodeOrderDocument(snap.Ref.ID, doc), docID: snap.Ref.ID})
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{Timestamp: last.order.CreatedAt, DocID: last.docID})
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.order)
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

type orderDocument struct {
	Code             string               `firestore:"code"`
	UserID           string               `firestore:"userId"`
	Email            string               `firestore:"email"`
	Status           string               `firestore:"status"`
	PaymentStatus    string               `firestore:"paymentStatus"`
	PaymentMethod    string               `firestore:"paymentMethod"`
	GatewayOrderID   string               `firestore:"gatewayOrderId"`
	GatewayPaymentID string               `firestore:"gatewayPaymentId"`
	CouponCode       *string              `firestore:"couponCode,omitempty"`
	Currency         string               `firestore:"currency"`
	Subtotal         int64                `firestore:"subtotal"`
	Discount         int64                `firestore:"discount"`
	Total            int64                `firestore:"total"`
	ShippingAddress  orderAddressDocument `firestore:"shippingAddress"`
	TrackingCode     *string              `firestore:"trackingCode,omitempty"`
	Carrier          *string              `firestore:"carrier,omitempty"`
	CreatedAt        time.Time            `firestore:"createdAt"`
	UpdatedAt        time.Time            `firestore:"updatedAt"`
	ShippedAt        *time.Time           `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time           `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time           `firestore:"cancelledAt,omitempty"`
	RefundedAt       *time.Time           `firestore:"refundedAt,omitempty"`
}

type orderAddressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		Code:             strings.TrimSpace(order.Code),
		UserID:           strings.TrimSpace(order.UserID),
		Email:            strings.TrimSpace(order.Email),
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    strings.TrimSpace(order.PaymentMethod),
		GatewayOrderID:   strings.TrimSpace(order.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(order.GatewayPaymentID),
		CouponCode:       order.CouponCode,
		Currency:         strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:         order.Subtotal,
		Discount:         order.Discount,
		Total:            order.Total,
		ShippingAddress: orderAddressDocument{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      order.ShippingAddress.Phone,
		},
		TrackingCode: order.TrackingCode,
		Carrier:      order.Carrier,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		ShippedAt:    order.ShippedAt,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
		RefundedAt:   order.RefundedAt,
	}
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:               id,
		Code:             doc.Code,
		UserID:           doc.UserID,
		Email:            doc.Email,
		Status:           domain.OrderStatus(doc.Status),
		PaymentStatus:    domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:    doc.PaymentMethod,
		GatewayOrderID:   doc.GatewayOrderID,
		GatewayPaymentID: doc.GatewayPaymentID,
		CouponCode:       doc.CouponCode,
		Currency:         doc.Currency,
		Subtotal:         doc.Subtotal,
		Discount:         doc.Discount,
		Total:            doc.Total,
		ShippingAddress: domain.Address{
			Recipient:  doc.ShippingAddress.Recipient,
			Line1:      doc.ShippingAddress.Line1,
			Line2:      doc.ShippingAddress.Line2,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
			Phone:      doc.ShippingAddress.Phone,
		},
		TrackingCode: doc.TrackingCode,
		Carrier:      doc.Carrier,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		ShippedAt:    doc.ShippedAt,
		DeliveredAt:  doc.DeliveredAt,
		CancelledAt:  doc.CancelledAt,
		RefundedAt:   doc.RefundedAt,
	}
}
