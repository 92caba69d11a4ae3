package weather

import (
	"context"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/logger"
)

// Provider fetches a live reading for one city.
type Provider interface {
	Fetch(ctx context.Context, city string) (Snapshot, error)
}

// Service resolves snapshots for a set of cities and never fails: any city the
// provider cannot serve gets a mock reading instead.
type Service struct {
	provider Provider
	timeout  time.Duration
	now      func() time.Time
}

// NewService builds a Service. A nil provider means mock data only.
func NewService(provider Provider, timeout time.Duration, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{provider: provider, timeout: timeout, now: now}
}

func (s *Service) Snapshots(ctx context.Context, cities []string) []Snapshot {
	out := make([]Snapshot, 0, len(cities))
	for _, city := range cities {
		out = append(out, s.snapshot(ctx, city))
	}
	return out
}

func (s *Service) snapshot(ctx context.Context, city string) Snapshot {
	if s.provider == nil {
		return MockSnapshot(city, s.now())
	}
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	snap, err := s.provider.Fetch(callCtx, city)
	if err != nil {
		logger.Warn("weather fetch failed, using fallback reading", "city", city, "error", err)
		return MockSnapshot(city, s.now())
	}
	return snap
}
