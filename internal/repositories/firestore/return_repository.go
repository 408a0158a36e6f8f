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
)

const returnCollection = "returns"

// ReturnRepository records customer return requests in Firestore.
type ReturnRepository struct {
	base     *pfirestore.BaseRepository[returnDocument]
	provider *pfirestore.Provider
}

// NewReturnRepository constructs a Firestore-backed return repository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[returnDocument](provider, returnCollection, nil, nil)
	return &ReturnRepository{base: base, provider: provider}, nil
}

// Insert stores a new return document.
func (r *ReturnRepository) Insert(ctx context.Context, ret domain.Return) error {
	if r == nil || r.base == nil {
		return errors.New("return repository not initialised")
	}
	returnID := strings.TrimSpace(ret.ID)
	if returnID == "" {
		return errors.New("return repository: return id is required")
	}
	_, err := r.base.Set(ctx, returnID, encodeReturnDocument(ret))
	return err
}

// Update overwrites an existing return document.
func (r *ReturnRepository) Update(ctx context.Context, ret domain.Return) error {
	return r.Insert(ctx, ret)
}

// FindByID fetches a return by document identifier.
func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	if r == nil || r.base == nil {
		return domain.Return{}, errors.New("return repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(returnID))
	if err != nil {
		return domain.Return{}, err
	}
	return decodeReturnDocument(doc.ID, doc.Data), nil
}

// FindByOrderID fetches the return filed against an order, if any.
func (r *ReturnRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Return, error) {
	if r == nil || r.base == nil {
		return domain.Return{}, errors.New("return repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return domain.Return{}, errors.New("return repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", oid).Limit(1)
	})
	if err != nil {
		return domain.Return{}, err
	}
	if len(docs) == 0 {
		return domain.Return{}, pfirestore.WrapError("returns.findByOrder", status.Errorf(codes.NotFound, "no return for order %s", oid))
	}
	return decodeReturnDocument(docs[0].ID, docs[0].Data), nil
}

// List returns return requests ordered by most recent first.
func (r *ReturnRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Return], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Return]{}, errors.New("return repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Return]{}, err
	}

	query := client.Collection(returnCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Return]{}, fmt.Errorf("returns.list: %w", err)
		}
		query = query.StartAfter(cursor.Timestamp, cursor.DocID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var returns []domain.Return
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Return]{}, pfirestore.WrapError("returns.list", err)
		}
		var doc returnDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Return]{}, fmt.Errorf("decode return %s: %w", snap.Ref.ID, err)
		}
		returns = append(returns, decodeReturnDocument(snap.Ref.ID, doc))
	}

	nextToken := ""
	if limit > 0 && len(returns) == fetchLimit {
		last := returns[len(returns)-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{Timestamp: last.CreatedAt, DocID: last.ID})
		returns = returns[:len(returns)-1]
	}

	return domain.CursorPage[domain.Return]{Items: returns, NextPageToken: nextToken}, nil
}

type returnDocument struct {
	OrderID    string     `firestore:"orderId"`
	OrderCode  string     `firestore:"orderCode"`
	UserID     string     `firestore:"userId"`
	Reason     string     `firestore:"reason"`
	Status     string     `firestore:"status"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
	RefundedAt *time.Time `firestore:"refundedAt,omitempty"`
}

func encodeReturnDocument(ret domain.Return) returnDocument {
	return returnDocument{
		OrderID:    strings.TrimSpace(ret.OrderID),
		OrderCode:  strings.TrimSpace(ret.OrderCode),
		UserID:     strings.TrimSpace(ret.UserID),
		Reason:     strings.TrimSpace(ret.Reason),
		Status:     string(ret.Status),
		CreatedAt:  ret.CreatedAt.UTC(),
		UpdatedAt:  ret.UpdatedAt.UTC(),
		RefundedAt: ret.RefundedAt,
	}
}

func decodeReturnDocument(id string, doc returnDocument) domain.Return {
	return domain.Return{
		ID:         id,
		OrderID:    doc.OrderID,
		OrderCode:  doc.OrderCode,
		UserID:     doc.UserID,
		Reason:     doc.Reason,
		Status:     domain.ReturnStatus(doc.Status),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		RefundedAt: doc.RefundedAt,
	}
}
