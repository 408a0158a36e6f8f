package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/repositories"
)

const couponIDPrefix = "cpn_"

var (
	// ErrCouponInvalidInput signals the caller provided invalid data.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponInvalidCode indicates no redeemable coupon exists under the code.
	ErrCouponInvalidCode = errors.New("coupon: invalid coupon code")
	// ErrCouponNotYetActive indicates the coupon window has not opened.
	ErrCouponNotYetActive = errors.New("coupon: not yet active")
	// ErrCouponExpired indicates the coupon window has closed.
	ErrCouponExpired = errors.New("coupon: expired")
	// ErrCouponUsageLimit indicates the redemption cap was reached.
	ErrCouponUsageLimit = errors.New("coupon: usage limit reached")
	// ErrCouponConflict indicates a duplicate code or concurrent update.
	ErrCouponConflict = errors.New("coupon: conflict")
)

// CouponServiceDeps bundles collaborators required to construct the coupon service.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type couponService struct {
	coupons repositories.CouponRepository
	clock   func() time.Time
	newID   func() string
}

var _ CouponService = (*couponService)(nil)

// NewCouponService wires dependencies into a concrete CouponService implementation.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
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

	return &couponService{
		coupons: deps.Coupons,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// Validate evaluates a coupon code against a subtotal. Lookup is exact and
// case sensitive. Rejections follow a fixed priority: unknown or disabled
// codes first, then window checks, then the usage cap.
func (s *couponService) Validate(ctx context.Context, code string, subtotal int64) (CouponQuote, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return CouponQuote{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	if subtotal < 0 {
		return CouponQuote{}, fmt.Errorf("%w: subtotal must not be negative", ErrCouponInvalidInput)
	}

	coupon, err := s.coupons.FindByCode(ctx, trimmed)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CouponQuote{}, ErrCouponInvalidCode
		}
		return CouponQuote{}, err
	}

	if coupon.Status != domain.CouponStatusActive && coupon.Status != domain.CouponStatusScheduled {
		return CouponQuote{}, ErrCouponInvalidCode
	}

	now := s.clock()
	if coupon.Status == domain.CouponStatusScheduled && coupon.ValidFrom.After(now) {
		return CouponQuote{}, ErrCouponNotYetActive
	}
	if !coupon.ValidUntil.IsZero() && coupon.ValidUntil.Before(now) {
		return CouponQuote{}, ErrCouponExpired
	}
	if coupon.MaxUses != nil && coupon.Uses >= *coupon.MaxUses {
		return CouponQuote{}, ErrCouponUsageLimit
	}

	discount := domain.DiscountFor(subtotal, coupon.Percent)
	return CouponQuote{
		Code:     coupon.Code,
		Percent:  coupon.Percent,
		Subtotal: subtotal,
		Discount: discount,
		Total:    domain.PayableTotal(subtotal, discount),
	}, nil
}

// RedeemAtCheckout bumps the usage counter for a placed order. The caller
// decides whether a failure here is fatal.
func (s *couponService) RedeemAtCheckout(ctx context.Context, code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	coupon, err := s.coupons.FindByCode(ctx, trimmed)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if _, err := s.coupons.IncrementUsage(ctx, coupon.ID, s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// CreateCoupon persists a new coupon definition for admins.
func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	if cmd.Percent <= 0 || cmd.Percent > 100 {
		return Coupon{}, fmt.Errorf("%w: percent must be between 1 and 100", ErrCouponInvalidInput)
	}
	if !cmd.ValidUntil.IsZero() && !cmd.ValidFrom.IsZero() && cmd.ValidUntil.Before(cmd.ValidFrom) {
		return Coupon{}, fmt.Errorf("%w: valid-until precedes valid-from", ErrCouponInvalidInput)
	}
	if cmd.MaxUses != nil && *cmd.MaxUses <= 0 {
		return Coupon{}, fmt.Errorf("%w: max uses must be positive when set", ErrCouponInvalidInput)
	}

	now := s.clock()
	status := cmd.Status
	if status == "" {
		if cmd.ValidFrom.After(now) {
			status = domain.CouponStatusScheduled
		} else {
			status = domain.CouponStatusActive
		}
	}
	switch status {
	case domain.CouponStatusActive, domain.CouponStatusScheduled, domain.CouponStatusDisabled:
	default:
		return Coupon{}, fmt.Errorf("%w: unknown status %q", ErrCouponInvalidInput, status)
	}

	coupon := Coupon{
		ID:         couponIDPrefix + s.newID(),
		Code:       code,
		Status:     status,
		Percent:    cmd.Percent,
		ValidFrom:  cmd.ValidFrom.UTC(),
		ValidUntil: cmd.ValidUntil.UTC(),
		MaxUses:    cmd.MaxUses,
		Uses:       0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

// ListCoupons pages through coupon definitions for admins.
func (s *couponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	page, err := s.coupons.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *couponService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCouponInvalidCode, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		}
	}
	return err
}
