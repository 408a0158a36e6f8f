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

const productCollection = "products"

// ProductRepository reads catalog products and mutates per-size stock counts.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// FindByID fetches a product by document identifier.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

// List returns catalog products matching the filter ordered by creation time.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	query := client.Collection(productCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	if filter.Category != nil {
		query = query.Where("category", "==", strings.TrimSpace(*filter.Category))
	}
	if filter.Status != nil {
		query = query.Where("status", "==", strings.TrimSpace(*filter.Status))
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
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: %w", err)
		}
		query = query.StartAfter(cursor.Timestamp, cursor.DocID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, decodeProductDocument(snap.Ref.ID, doc))
	}

	nextToken := ""
	if limit > 0 && len(products) == fetchLimit {
		last := products[len(products)-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{Timestamp: last.CreatedAt, DocID: last.ID})
		products = products[:len(products)-1]
	}

	return domain.CursorPage[domain.Product]{Items: products, NextPageToken: nextToken}, nil
}

// ApplyStockDeltas adjusts per-size counts inside a transaction. Negative
// deltas clamp the resulting count at zero.
func (r *ProductRepository) ApplyStockDeltas(ctx context.Context, productID string, deltas map[string]int, now time.Time) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "product id is required", nil)
	}
	if len(deltas) == 0 {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "no stock deltas supplied", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	var updated domain.Product
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := client.Collection(productCollection).Doc(pid)
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", pid), err)
			}
			return err
		}

		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", pid, err)
		}
		if doc.Sizes == nil {
			doc.Sizes = map[string]int{}
		}
		for size, delta := range deltas {
			key := strings.TrimSpace(size)
			if key == "" {
				continue
			}
			next := doc.Sizes[key] + delta
			if next < 0 {
				next = 0
			}
			doc.Sizes[key] = next
		}
		doc.UpdatedAt = now.UTC()

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		updated = decodeProductDocument(pid, doc)
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return domain.Product{}, stockErr
		}
		return domain.Product{}, pfirestore.WrapError("products.applyStockDeltas", err)
	}
	return updated, nil
}

type productDocument struct {
	Name        string         `firestore:"name"`
	Description string         `firestore:"description"`
	Category    string         `firestore:"category"`
	Status      string         `firestore:"status"`
	Price       int64          `firestore:"price"`
	Currency    string         `firestore:"currency"`
	Sizes       map[string]int `firestore:"sizes"`
	ImageURL    *string        `firestore:"imageUrl,omitempty"`
	CreatedAt   time.Time      `firestore:"createdAt"`
	UpdatedAt   time.Time      `firestore:"updatedAt"`
}

func decodeProductDocument(id string, doc productDocument) domain.Product {
	sizes := make(map[string]int, len(doc.Sizes))
	for size, count := range doc.Sizes {
		sizes[size] = count
	}
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Category:    doc.Category,
		Status:      doc.Status,
		Price:       doc.Price,
		Currency:    doc.Currency,
		Sizes:       sizes,
		ImageURL:    doc.ImageURL,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
