package repository

import (
	"context"
	"errors"

	"tradepilot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicateSignal means a signal with the same external id was already
// recorded. Webhook re-deliveries hit this path.
var ErrDuplicateSignal = errors.New("signal already recorded")

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

// Insert persists a new signal and fills in its id. A conflicting external
// id returns ErrDuplicateSignal without writing a row.
func (r *SignalRepository) Insert(ctx context.Context, signal *domain.Signal) error {
	ctx, span := r.tracer.Start(ctx, "signal-repo.insert")
	defer span.End()

	err := r.pool.QueryRow(ctx,
		`INSERT INTO signals (external_id, symbol, direction, strength, close_intent, price, received_at, processing_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING id`,
		signal.ExternalID, signal.Symbol, signal.Direction, signal.Strength,
		signal.CloseIntent, signal.Price, signal.ReceivedAt, signal.Status,
	).Scan(&signal.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateSignal
	}
	return err
}

func (r *SignalRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Signal, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.get-by-external-id")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT id, external_id, symbol, direction, strength, close_intent, price, received_at, processing_status
		 FROM signals
		 WHERE external_id = $1`,
		externalID,
	)
	return scanSignal(row)
}

func (r *SignalRepository) GetByID(ctx context.Context, id int64) (*domain.Signal, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.get-by-id")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT id, external_id, symbol, direction, strength, close_intent, price, received_at, processing_status
		 FROM signals
		 WHERE id = $1`,
		id,
	)
	return scanSignal(row)
}

func (r *SignalRepository) UpdateStatus(ctx context.Context, id int64, status domain.ProcessingStatus) error {
	ctx, span := r.tracer.Start(ctx, "signal-repo.update-status")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE signals SET processing_status = $2 WHERE id = $1`,
		id, status,
	)
	return err
}

// Recent returns the newest signals first, for the admin read API.
func (r *SignalRepository) Recent(ctx context.Context, limit int) ([]domain.Signal, error) {
	ctx, span := r.tracer.Start(ctx, "signal-repo.recent")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, external_id, symbol, direction, strength, close_intent, price, received_at, processing_status
		 FROM signals
		 ORDER BY received_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *s)
	}
	return signals, rows.Err()
}

func scanSignal(row pgx.Row) (*domain.Signal, error) {
	s := &domain.Signal{}
	err := row.Scan(&s.ID, &s.ExternalID, &s.Symbol, &s.Direction, &s.Strength,
		&s.CloseIntent, &s.Price, &s.ReceivedAt, &s.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.ReceivedAt = s.ReceivedAt.UTC()
	return s, nil
}
