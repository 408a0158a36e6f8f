package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stitchfield/api/internal/repositories"
)

const defaultCartFlushInterval = 5 * time.Second

// CartSyncer batches cart writes and flushes them on an interval so rapid
// item edits do not hammer the store. One flush runs at a time; carts that
// fail to write stay queued for the next pass.
type CartSyncer struct {
	carts    repositories.CartRepository
	interval time.Duration
	logger   func(ctx context.Context, event string, fields map[string]any)

	mu       sync.Mutex
	pending  map[string]Cart
	inFlight bool

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewCartSyncer constructs a syncer flushing at the given interval.
func NewCartSyncer(carts repositories.CartRepository, interval time.Duration, logger func(ctx context.Context, event string, fields map[string]any)) (*CartSyncer, error) {
	if carts == nil {
		return nil, errors.New("cart syncer: cart repository is required")
	}
	if interval <= 0 {
		interval = defaultCartFlushInterval
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartSyncer{
		carts:    carts,
		interval: interval,
		logger:   logger,
		pending:  make(map[string]Cart),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches the flush loop. It returns immediately.
func (s *CartSyncer) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Flush(ctx)
			case <-s.stopCh:
				s.Flush(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Enqueue records the latest cart state for a user, superseding any queued
// write for the same user.
func (s *CartSyncer) Enqueue(cart Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[cart.UserID] = cart
}

// Drop discards any queued write for the user.
func (s *CartSyncer) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
}

// Flush writes all queued carts. Concurrent calls are collapsed: if a flush
// is already running the call returns without doing anything.
func (s *CartSyncer) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	batch := s.pending
	s.pending = make(map[string]Cart, len(batch))
	s.mu.Unlock()

	failed := make(map[string]Cart)
	for userID, cart := range batch {
		if _, err := s.carts.UpsertCart(ctx, cart); err != nil {
			failed[userID] = cart
			s.logger(ctx, "cart.sync.flush_failed", map[string]any{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}

	s.mu.Lock()
	for userID, cart := range failed {
		// A newer enqueue wins over the failed write.
		if _, ok := s.pending[userID]; !ok {
			s.pending[userID] = cart
		}
	}
	s.inFlight = false
	s.mu.Unlock()
}

// Close stops the loop after a final flush and waits for it to exit.
func (s *CartSyncer) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.stopCh)
	})
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
