package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/stitchfield/api/internal/domain"
	pfirestore "github.com/stitchfield/api/internal/platform/firestore"
)

const orderItemCollectionPattern = "orders/%s/items"

// OrderItemRepository persists order line snapshots beneath their order document.
type OrderItemRepository struct {
	provider *pfirestore.Provider
}

// NewOrderItemRepository constructs a Firestore-backed order item repository.
func NewOrderItemRepository(provider *pfirestore.Provider) (*OrderItemRepository, error) {
	if provider == nil {
		return nil, errors.New("order item repository requires firestore provider")
	}
	return &OrderItemRepository{provider: provider}, nil
}

// InsertMany stores the line items for an order in a single batch write.
func (r *OrderItemRepository) InsertMany(ctx context.Context, orderID string, items []domain.OrderItem) error {
	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("order item repository: at least one item is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(items))
	for idx, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			writer.End()
			return fmt.Errorf("order item repository: item %d is missing an id", idx)
		}
		job, err := writer.Set(coll.Doc(id), encodeOrderItemDocument(item))
		if err != nil {
			writer.End()
			return pfirestore.WrapError("orderItems.insert", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return pfirestore.WrapError("orderItems.insert", err)
		}
	}
	return nil
}

// ListByOrder returns the line items for an order.
func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var items []domain.OrderItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orderItems.list", err)
		}
		var doc orderItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, decodeOrderItemDocument(snap.Ref.ID, strings.TrimSpace(orderID), doc))
	}
	return items, nil
}

func (r *OrderItemRepository) collection(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order item repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("order item repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(orderItemCollectionPattern, oid)), nil
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	Size      string  `firestore:"size"`
	Quantity  int     `firestore:"quantity"`
	UnitPrice int64   `firestore:"unitPrice"`
	LineTotal int64   `firestore:"lineTotal"`
	ImageURL  *string `firestore:"imageUrl,omitempty"`
}

func encodeOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		ProductID: strings.TrimSpace(item.ProductID),
		Name:      strings.TrimSpace(item.Name),
		Size:      strings.TrimSpace(item.Size),
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		LineTotal: item.LineTotal,
		ImageURL:  item.ImageURL,
	}
}

func decodeOrderItemDocument(id, orderID string, doc orderItemDocument) domain.OrderItem {
	return domain.OrderItem{
		ID:        id,
		OrderID:   orderID,
		ProductID: doc.ProductID,
		Name:      doc.Name,
		Size:      doc.Size,
		Quantity:  doc.Quantity,
		UnitPrice: doc.UnitPrice,
		LineTotal: doc.LineTotal,
		ImageURL:  doc.ImageURL,
	}
}
