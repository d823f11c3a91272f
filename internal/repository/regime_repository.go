package repository

import (
	"context"
	"errors"

	"tradepilot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// RegimeRepository keeps the audit trail of committed regime snapshots. The
// live snapshot is served from memory; these rows exist for after-the-fact
// review of why a direction was blocked.
type RegimeRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRegimeRepository(pool PgxPool, tracer trace.Tracer) *RegimeRepository {
	return &RegimeRepository{pool: pool, tracer: tracer}
}

func (r *RegimeRepository) InsertSnapshot(ctx context.Context, regime domain.MarketRegime) error {
	ctx, span := r.tracer.Start(ctx, "regime-repo.insert-snapshot")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO market_regimes (score, allowed_direction, fetched_at, stale_after)
		 VALUES ($1, $2, $3, $4)`,
		regime.Score, regime.AllowedDirection, regime.FetchedAt, regime.StaleAfter,
	)
	return err
}

// Latest returns the most recently committed snapshot, or nil when the table
// is empty. Used to warm the in-memory regime on startup.
func (r *RegimeRepository) Latest(ctx context.Context) (*domain.MarketRegime, error) {
	ctx, span := r.tracer.Start(ctx, "regime-repo.latest")
	defer span.End()

	m := &domain.MarketRegime{}
	err := r.pool.QueryRow(ctx,
		`SELECT score, allowed_direction, fetched_at, stale_after
		 FROM market_regimes
		 ORDER BY fetched_at DESC
		 LIMIT 1`,
	).Scan(&m.Score, &m.AllowedDirection, &m.FetchedAt, &m.StaleAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.FetchedAt = m.FetchedAt.UTC()
	m.StaleAfter = m.StaleAfter.UTC()
	return m, nil
}
