package regime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"tradepilot/internal/domain"
	"tradepilot/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

type SentimentSource interface {
	FetchLatest(ctx context.Context) (*provider.FearGreedPoint, error)
}

type Store interface {
	InsertSnapshot(ctx context.Context, regime domain.MarketRegime) error
}

// Publisher pushes the current snapshot to out-of-process readers.
type Publisher func(ctx context.Context, payload []byte, ttl time.Duration) error

// Service owns the singleton market regime. Refresh swaps a whole immutable
// snapshot; Current is a lock-free pointer read and never touches the
// network.
type Service struct {
	tracer  trace.Tracer
	sources []SentimentSource
	store   Store
	publish Publisher
	ttl     time.Duration

	current atomic.Pointer[domain.MarketRegime]
	nowFunc func() time.Time
}

func NewService(tracer trace.Tracer, sources []SentimentSource, store Store, publish Publisher, staleAfter time.Duration) *Service {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &Service{
		tracer:  tracer,
		sources: sources,
		store:   store,
		publish: publish,
		ttl:     staleAfter,
		nowFunc: time.Now,
	}
}

// Warm seeds the in-memory snapshot from a persisted one, typically the
// newest audit row at startup. A nil or stale snapshot is ignored.
func (s *Service) Warm(snapshot *domain.MarketRegime) {
	if snapshot == nil || snapshot.Stale(s.nowFunc().UTC()) {
		return
	}
	s.current.Store(snapshot)
}

// Current returns the latest committed snapshot. A stale or missing snapshot
// reports BOTH: the platform keeps trading on the last known regime and
// fails open once even that expires.
func (s *Service) Current() domain.MarketRegime {
	now := s.nowFunc().UTC()
	snapshot := s.current.Load()
	if snapshot == nil || snapshot.Stale(now) {
		return domain.MarketRegime{
			Score:            50,
			AllowedDirection: domain.Both,
			FetchedAt:        now,
			StaleAfter:       now,
		}
	}
	return *snapshot
}

// Refresh polls the configured sources in order and commits the first
// successful reading. Source failure keeps the previous snapshot current
// until it passes staleAfter.
func (s *Service) Refresh(ctx context.Context) (domain.MarketRegime, error) {
	ctx, span := s.tracer.Start(ctx, "regime.refresh")
	defer span.End()

	var lastErr error
	for _, source := range s.sources {
		point, err := source.FetchLatest(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		snapshot := domain.RegimeFromScore(point.Value, s.nowFunc(), s.ttl)
		s.commit(ctx, snapshot)
		return snapshot, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no sentiment sources configured")
	}
	if previous := s.current.Load(); previous != nil {
		return *previous, fmt.Errorf("all sentiment sources failed, keeping snapshot from %s: %w",
			previous.FetchedAt.Format(time.RFC3339), lastErr)
	}
	return domain.MarketRegime{}, lastErr
}

func (s *Service) commit(ctx context.Context, snapshot domain.MarketRegime) {
	s.current.Store(&snapshot)

	if s.store != nil {
		if err := s.store.InsertSnapshot(ctx, snapshot); err != nil {
			// Audit trail only; the in-memory snapshot is already live.
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
		}
	}
	if s.publish != nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			_ = s.publish(ctx, payload, s.ttl)
		}
	}
}
