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

const couponCollection = "coupons"

// CouponRepository maintains coupon definitions and usage counters in Firestore.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{base: base, provider: provider}, nil
}

// Insert stores a new coupon document.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	_, err := r.base.Set(ctx, couponID, encodeCouponDocument(coupon))
	return err
}

// Update overwrites an existing coupon document.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	return r.Insert(ctx, coupon)
}

// FindByCode fetches a coupon by its exact, case-sensitive code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.WrapError("coupons.findByCode", status.Errorf(codes.NotFound, "coupon code %s not found", trimmed))
	}
	return decodeCouponDocument(docs[0].ID, docs[0].Data), nil
}

// List returns coupons matching the filter ordered by creation time.
func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	query := client.Collection(couponCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)

	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
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
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupons.list: %w", err)
		}
		query = query.StartAfter(cursor.Timestamp, cursor.DocID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var coupons []domain.Coupon
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, pfirestore.WrapError("coupons.list", err)
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("decode coupon %s: %w", snap.Ref.ID, err)
		}
		coupons = append(coupons, decodeCouponDocument(snap.Ref.ID, doc))
	}

	nextToken := ""
	if limit > 0 && len(coupons) == fetchLimit {
		last := coupons[len(coupons)-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{Timestamp: last.CreatedAt, DocID: last.ID})
		coupons = coupons[:len(coupons)-1]
	}

	return domain.CursorPage[domain.Coupon]{Items: coupons, NextPageToken: nextToken}, nil
}

// IncrementUsage bumps the redemption counter by one. A server-side increment
// is attempted first; when that write fails the counter falls back to a
// transactional read-then-write.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string, now time.Time) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	cid := strings.TrimSpace(couponID)
	if cid == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon id is required")
	}

	_, err := r.base.Update(ctx, cid, []firestore.Update{
		{Path: "uses", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: now.UTC()},
	})
	if err == nil {
		doc, err := r.base.Get(ctx, cid)
		if err != nil {
			return domain.Coupon{}, err
		}
		return decodeCouponDocument(doc.ID, doc.Data), nil
	}

	client, clientErr := r.provider.Client(ctx)
	if clientErr != nil {
		return domain.Coupon{}, clientErr
	}

	var updated domain.Coupon
	txErr := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := client.Collection(couponCollection).Doc(cid)
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", cid, err)
		}
		doc.Uses++
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		updated = decodeCouponDocument(cid, doc)
		return nil
	})
	if txErr != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.incrementUsage", txErr)
	}
	return updated, nil
}

type couponDocument struct {
	Code       string    `firestore:"code"`
	Status     string    `firestore:"status"`
	Percent    int       `firestore:"percent"`
	ValidFrom  time.Time `firestore:"validFrom"`
	ValidUntil time.Time `firestore:"validUntil"`
	MaxUses    *int      `firestore:"maxUses,omitempty"`
	Uses       int       `firestore:"uses"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func encodeCouponDocument(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:       strings.TrimSpace(coupon.Code),
		Status:     string(coupon.Status),
		Percent:    coupon.Percent,
		ValidFrom:  coupon.ValidFrom.UTC(),
		ValidUntil: coupon.ValidUntil.UTC(),
		MaxUses:    coupon.MaxUses,
		Uses:       coupon.Uses,
		CreatedAt:  coupon.CreatedAt.UTC(),
		UpdatedAt:  coupon.UpdatedAt.UTC(),
	}
}

func decodeCouponDocument(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:         id,
		Code:       doc.Code,
		Status:     domain.CouponStatus(doc.Status),
		Percent:    doc.Percent,
		ValidFrom:  doc.ValidFrom,
		ValidUntil: doc.ValidUntil,
		MaxUses:    doc.MaxUses,
		Uses:       doc.Uses,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
