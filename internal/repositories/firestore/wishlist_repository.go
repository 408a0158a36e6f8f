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

const wishlistCollectionPattern = "users/%s/wishlist"

// WishlistRepository persists saved products per user.
type WishlistRepository struct {
	provider *pfirestore.Provider
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{provider: provider}, nil
}

// List returns wishlist entries ordered by most recent addition.
func (r *WishlistRepository) List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.CursorPage[domain.WishlistItem]{}, err
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}

	query := coll.OrderBy("addedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	var fetchLimit int
	if limit > 0 {
		fetchLimit = limit + 1
		query = query.Limit(fetchLimit)
	}

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, fmt.Errorf("wishlist.list: %w", err)
		}
		query = query.StartAfter(cursor.Timestamp, cursor.DocID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	type wishlistRow struct {
		data  domain.WishlistItem
		docID string
	}

	var rows []wishlistRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, pfirestore.WrapError("wishlist.list", err)
		}
		item, err := decodeWishlistDocument(snap)
		if err != nil {
			return domain.CursorPage[domain.WishlistItem]{}, err
		}
		rows = append(rows, wishlistRow{data: item, docID: snap.Ref.ID})
	}

	nextToken := ""
	if limit > 0 && len(rows) == fetchLimit {
		last := rows[len(rows)-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{Timestamp: last.data.AddedAt, DocID: last.docID})
		rows = rows[:len(rows)-1]
	}

	items := make([]domain.WishlistItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.data)
	}

	return domain.CursorPage[domain.WishlistItem]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Put stores or preserves a wishlist entry. Returns true when a new
// document was created.
func (r *WishlistRepository) Put(ctx context.Context, userID string, item domain.WishlistItem, limit int) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}

	productID := strings.TrimSpace(item.ProductID)
	if productID == "" {
		return false, errors.New("wishlist repository: product id is required")
	}
	addedAt := item.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}

	created := false
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(productID)
		if _, err := tx.Get(docRef); err == nil {
			created = false
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		if limit > 0 {
			countQuery := coll.Select("addedAt").Limit(limit)
			iter := tx.Documents(countQuery)
			snaps, err := iter.GetAll()
			if err != nil {
				return err
			}
			if len(snaps) >= limit {
				return status.Error(codes.FailedPrecondition, "wishlist limit reached")
			}
		}

		doc := wishlistDocument{
			Name:     strings.TrimSpace(item.Name),
			Price:    item.Price,
			ImageURL: item.ImageURL,
			AddedAt:  addedAt.UTC(),
		}
		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("wishlist.put", err)
	}
	return created, nil
}

// Delete removes the wishlist document.
func (r *WishlistRepository) Delete(ctx context.Context, userID string, productID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("wishlist repository: product id is required")
	}
	if _, err := coll.Doc(productID).Delete(ctx); err != nil {
		return pfirestore.WrapError("wishlist.delete", err)
	}
	return nil
}

func (r *WishlistRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("wishlist repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("wishlist repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf(wishlistCollectionPattern, uid)
	return client.Collection(path), nil
}

func decodeWishlistDocument(snapshot *firestore.DocumentSnapshot) (domain.WishlistItem, error) {
	var doc wishlistDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.WishlistItem{}, fmt.Errorf("decode wishlist entry %s: %w", snapshot.Ref.ID, err)
	}
	return domain.WishlistItem{
		ProductID: snapshot.Ref.ID,
		Name:      doc.Name,
		Price:     doc.Price,
		ImageURL:  doc.ImageURL,
		AddedAt:   doc.AddedAt,
	}, nil
}

type wishlistDocument struct {
	Name     string    `firestore:"name"`
	Price    int64     `firestore:"price"`
	ImageURL *string   `firestore:"imageUrl,omitempty"`
	AddedAt  time.Time `firestore:"addedAt"`
}
