package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stitchfield/api/internal/repositories"
)

// ErrInventoryInvalidInput signals the caller provided invalid stock lines.
var ErrInventoryInvalidInput = errors.New("inventory: invalid input")

// InventoryServiceDeps bundles collaborators required to construct the inventory service.
type InventoryServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// DeductForOrder decrements per-size stock for every line, grouped per
// product. Products are adjusted sequentially; a failure stops the walk and
// is surfaced to the caller with earlier adjustments left in place.
func (s *inventoryService) DeductForOrder(ctx context.Context, items []OrderItem) error {
	groups, order, err := groupStockDeltas(items, -1)
	if err != nil {
		return err
	}
	now := s.clock()
	for _, productID := range order {
		if _, err := s.products.ApplyStockDeltas(ctx, productID, groups[productID], now); err != nil {
			return fmt.Errorf("inventory: deduct stock for product %s: %w", productID, err)
		}
	}
	return nil
}

// RestockForOrder adds refunded quantities back per product. Each product's
// failure is logged and swallowed so one bad document cannot block the rest
// of the refund.
func (s *inventoryService) RestockForOrder(ctx context.Context, items []OrderItem) error {
	groups, order, err := groupStockDeltas(items, 1)
	if err != nil {
		return err
	}
	now := s.clock()
	for _, productID := range order {
		if _, err := s.products.ApplyStockDeltas(ctx, productID, groups[productID], now); err != nil {
			s.logger(ctx, "inventory.restock.failed", map[string]any{
				"productId": productID,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

// groupStockDeltas folds order lines into per-product size deltas, preserving
// first-seen product order for deterministic walks.
func groupStockDeltas(items []OrderItem, sign int) (map[string]map[string]int, []string, error) {
	groups := make(map[string]map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, nil, fmt.Errorf("%w: order line is missing product id", ErrInventoryInvalidInput)
		}
		size := strings.TrimSpace(item.Size)
		if size == "" {
			return nil, nil, fmt.Errorf("%w: order line for product %s is missing size", ErrInventoryInvalidInput, productID)
		}
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: order line for product %s has non-positive quantity", ErrInventoryInvalidInput, productID)
		}
		deltas, ok := groups[productID]
		if !ok {
			deltas = make(map[string]int)
			groups[productID] = deltas
			order = append(order, productID)
		}
		deltas[size] += sign * item.Quantity
	}
	return groups, order, nil
}
