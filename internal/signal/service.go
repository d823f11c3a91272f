package signal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tradepilot/internal/cache"
	"tradepilot/internal/domain"
	"tradepilot/internal/repository"

	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicate reports that the webhook delivery was already accepted. The
// handler still answers 200 so the source stops retrying.
var ErrDuplicate = errors.New("duplicate signal delivery")

// ErrInvalidPayload marks deliveries the source got wrong. The handler
// answers 400 for these and 500 for everything else, so the source knows
// whether re-delivering the same payload can ever succeed.
var ErrInvalidPayload = errors.New("invalid signal payload")

// WebhookPayload is the alert source's wire shape.
type WebhookPayload struct {
	ExternalID string  `json:"external_id"`
	Symbol     string  `json:"symbol" binding:"required"`
	Action     string  `json:"action" binding:"required"`
	Price      float64 `json:"price" binding:"required"`
}

type SignalStore interface {
	Insert(ctx context.Context, signal *domain.Signal) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.Signal, error)
	UpdateStatus(ctx context.Context, id int64, status domain.ProcessingStatus) error
}

// Dispatcher accepts a persisted dispatchable signal for asynchronous
// fan-out. Enqueue must not block the intake path.
type Dispatcher interface {
	Enqueue(signal domain.Signal)
}

const dedupTTL = 24 * time.Hour

// Service turns validated webhook payloads into persisted signals and hands
// dispatchable ones to the orchestrator. Intake finishes before any
// subscriber work starts; the webhook response never waits on an exchange.
type Service struct {
	tracer     trace.Tracer
	store      SignalStore
	dispatcher Dispatcher
	nowFunc    func() time.Time
}

func NewService(tracer trace.Tracer, store SignalStore, dispatcher Dispatcher) *Service {
	return &Service{
		tracer:     tracer,
		store:      store,
		dispatcher: dispatcher,
		nowFunc:    time.Now,
	}
}

// Ingest validates, deduplicates, and persists one delivery. On a duplicate
// it returns the previously recorded signal together with ErrDuplicate.
func (s *Service) Ingest(ctx context.Context, payload WebhookPayload) (*domain.Signal, error) {
	ctx, span := s.tracer.Start(ctx, "signal.ingest")
	defer span.End()

	intent, err := ParseAction(payload.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: parse action: %v", ErrInvalidPayload, err)
	}
	if payload.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", ErrInvalidPayload, payload.Price)
	}

	if payload.ExternalID != "" {
		claimed, err := cache.ClaimExternalID(ctx, payload.ExternalID, dedupTTL)
		if err != nil {
			// Redis trouble never drops a signal; the DB index still dedups.
			log.Printf("signal dedup cache unavailable: %v", err)
		} else if !claimed {
			existing, err := s.store.GetByExternalID(ctx, payload.ExternalID)
			if err != nil {
				return nil, fmt.Errorf("lookup duplicate signal: %w", err)
			}
			if existing != nil {
				return existing, ErrDuplicate
			}
			// Claimed but never persisted: an earlier delivery died mid-flight.
		}
	}

	sig := &domain.Signal{
		Symbol:      payload.Symbol,
		Direction:   intent.Direction,
		Strength:    intent.Strength,
		CloseIntent: intent.Kind == IntentClose,
		Price:       payload.Price,
		ReceivedAt:  s.nowFunc().UTC(),
		Status:      domain.ProcessingPending,
	}
	if payload.ExternalID != "" {
		sig.ExternalID = &payload.ExternalID
	}

	if err := s.store.Insert(ctx, sig); err != nil {
		if errors.Is(err, repository.ErrDuplicateSignal) {
			existing, lookupErr := s.store.GetByExternalID(ctx, payload.ExternalID)
			if lookupErr == nil && existing != nil {
				return existing, ErrDuplicate
			}
			return nil, ErrDuplicate
		}
		if payload.ExternalID != "" {
			cache.ReleaseExternalID(ctx, payload.ExternalID)
		}
		return nil, fmt.Errorf("persist signal: %w", err)
	}

	if !sig.Dispatchable() {
		// Weak non-close signals are analytics-only.
		sig.Status = domain.ProcessingSuccess
		if err := s.store.UpdateStatus(ctx, sig.ID, domain.ProcessingSuccess); err != nil {
			log.Printf("mark informational signal %d: %v", sig.ID, err)
		}
		return sig, nil
	}

	if s.dispatcher != nil {
		s.dispatcher.Enqueue(*sig)
	}
	return sig, nil
}
