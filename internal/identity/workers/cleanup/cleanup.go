// Package cleanup sweeps expired identity proofs on a fixed interval.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"attestor/pkg/domain"
)

// AddressLister enumerates every registered identity address.
type AddressLister interface {
	Addresses(ctx context.Context) ([]domain.Address, error)
}

// Sweeper deactivates the expired records among the given addresses.
type Sweeper interface {
	CleanupExpired(ctx context.Context, addrs []domain.Address) (int, error)
}

// SweepService periodically deactivates expired identity proofs. Expiry is
// otherwise only noticed lazily, when an expired record is next read; the
// sweep keeps the stored flags honest in between.
type SweepService struct {
	addresses AddressLister
	sweeper   Sweeper
	interval  time.Duration
	logger    *slog.Logger
}

// Option configures SweepService.
type Option func(*SweepService)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *SweepService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger overrides the logger used for sweep errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SweepService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a SweepService with required dependencies and options applied.
func New(addresses AddressLister, sweeper Sweeper, opts ...Option) (*SweepService, error) {
	if addresses == nil || sweeper == nil {
		return nil, fmt.Errorf("addresses and sweeper are required")
	}
	svc := &SweepService{
		addresses: addresses,
		sweeper:   sweeper,
		interval:  time.Hour,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs the sweep periodically until ctx is cancelled.
func (s *SweepService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "identity sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep over all registered addresses and
// returns the number of records deactivated.
func (s *SweepService) RunOnce(ctx context.Context) (int, error) {
	addrs, err := s.addresses.Addresses(ctx)
	if err != nil {
		return 0, fmt.Errorf("list identity addresses: %w", err)
	}
	if len(addrs) == 0 {
		return 0, nil
	}

	swept, err := s.sweeper.CleanupExpired(ctx, addrs)
	if err != nil {
		return swept, fmt.Errorf("sweep expired identities: %w", err)
	}
	if swept > 0 {
		s.logger.InfoContext(ctx, "expired identity proofs deactivated", "count", swept)
	}
	return swept, nil
}
