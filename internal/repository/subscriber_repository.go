package repository

import (
	"context"
	"errors"

	"tradepilot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type SubscriberRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSubscriberRepository(pool PgxPool, tracer trace.Tracer) *SubscriberRepository {
	return &SubscriberRepository{pool: pool, tracer: tracer}
}

// ListEligible returns subscribers that are active with trading enabled, in
// stable id order so dispatch fan-out is deterministic.
func (r *SubscriberRepository) ListEligible(ctx context.Context) ([]domain.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber-repo.list-eligible")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, active, trading_enabled, created_at
		 FROM subscribers
		 WHERE active AND trading_enabled
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscribers []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(&s.ID, &s.Active, &s.TradingEnabled, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

func (r *SubscriberRepository) GetByID(ctx context.Context, id int64) (*domain.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber-repo.get-by-id")
	defer span.End()

	s := &domain.Subscriber{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, active, trading_enabled, created_at FROM subscribers WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Active, &s.TradingEnabled, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
