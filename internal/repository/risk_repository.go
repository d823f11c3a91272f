package repository

import (
	"context"
	"errors"
	"fmt"

	"tradepilot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type RiskRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRiskRepository(pool PgxPool, tracer trace.Tracer) *RiskRepository {
	return &RiskRepository{pool: pool, tracer: tracer}
}

// Get returns the subscriber's stored profile, or the platform default when
// none exists. Readers never see an invalid profile: bounds are enforced at
// write time and by table CHECK constraints.
func (r *RiskRepository) Get(ctx context.Context, subscriberID int64) (domain.RiskProfile, error) {
	ctx, span := r.tracer.Start(ctx, "risk-repo.get")
	defer span.End()

	p := domain.RiskProfile{SubscriberID: subscriberID}
	err := r.pool.QueryRow(ctx,
		`SELECT balance_percent_per_trade, leverage, take_profit_multiplier, stop_loss_multiplier, max_concurrent_positions
		 FROM risk_profiles
		 WHERE subscriber_id = $1`,
		subscriberID,
	).Scan(&p.BalancePercentPerTrade, &p.Leverage, &p.TakeProfitMultiplier,
		&p.StopLossMultiplier, &p.MaxConcurrentPositions)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultRiskProfile(subscriberID), nil
	}
	if err != nil {
		return domain.RiskProfile{}, err
	}
	return p, nil
}

// Upsert validates and stores a profile. Out-of-bounds parameters are
// rejected before touching the database.
func (r *RiskRepository) Upsert(ctx context.Context, p domain.RiskProfile) error {
	ctx, span := r.tracer.Start(ctx, "risk-repo.upsert")
	defer span.End()

	if err := p.Validate(); err != nil {
		return fmt.Errorf("risk profile for subscriber %d: %w", p.SubscriberID, err)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO risk_profiles
		     (subscriber_id, balance_percent_per_trade, leverage, take_profit_multiplier, stop_loss_multiplier, max_concurrent_positions)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subscriber_id) DO UPDATE SET
		     balance_percent_per_trade = EXCLUDED.balance_percent_per_trade,
		     leverage = EXCLUDED.leverage,
		     take_profit_multiplier = EXCLUDED.take_profit_multiplier,
		     stop_loss_multiplier = EXCLUDED.stop_loss_multiplier,
		     max_concurrent_positions = EXCLUDED.max_concurrent_positions`,
		p.SubscriberID, p.BalancePercentPerTrade, p.Leverage,
		p.TakeProfitMultiplier, p.StopLossMultiplier, p.MaxConcurrentPositions,
	)
	return err
}
