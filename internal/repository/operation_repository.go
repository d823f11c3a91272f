package repository

import (
	"context"
	"errors"
	"time"

	"tradepilot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenPositionExists means the subscriber already holds an OPEN operation
// on the symbol. The partial unique index on (subscriber_id, symbol) WHERE
// status = 'OPEN' enforces this even under concurrent dispatch.
var ErrOpenPositionExists = errors.New("open operation already exists for subscriber and symbol")

const uniqueViolation = "23505"

type OperationRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewOperationRepository(pool PgxPool, tracer trace.Tracer) *OperationRepository {
	return &OperationRepository{pool: pool, tracer: tracer}
}

// Open appends an OPEN row for a filled entry order. The conditional insert
// is the ledger's correctness boundary: a concurrent open on the same
// (subscriber, symbol) pair surfaces as ErrOpenPositionExists.
func (r *OperationRepository) Open(ctx context.Context, op *domain.Operation) error {
	ctx, span := r.tracer.Start(ctx, "operation-repo.open")
	defer span.End()

	err := r.pool.QueryRow(ctx,
		`INSERT INTO operations
		     (signal_id, subscriber_id, symbol, side, quantity, entry_price,
		      stop_loss_price, take_profit_price, exchange_order_id, status,
		      protection_pending, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'OPEN', $10, $11)
		 RETURNING id`,
		op.SignalID, op.SubscriberID, op.Symbol, op.Side, op.Quantity, op.EntryPrice,
		op.StopLossPrice, op.TakeProfitPrice, op.ExchangeOrderID,
		op.ProtectionPending, op.OpenedAt,
	).Scan(&op.ID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrOpenPositionExists
	}
	if err == nil {
		op.Status = domain.OperationOpen
	}
	return err
}

// RecordFailure appends a terminal REJECTED or ERROR row. Failure rows never
// collide with the open-position index.
func (r *OperationRepository) RecordFailure(ctx context.Context, op *domain.Operation) error {
	ctx, span := r.tracer.Start(ctx, "operation-repo.record-failure")
	defer span.End()

	return r.pool.QueryRow(ctx,
		`INSERT INTO operations
		     (signal_id, subscriber_id, symbol, side, quantity, entry_price,
		      stop_loss_price, take_profit_price, exchange_order_id, status,
		      error_class, protection_pending, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12)
		 RETURNING id`,
		op.SignalID, op.SubscriberID, op.Symbol, op.Side, op.Quantity, op.EntryPrice,
		op.StopLossPrice, op.TakeProfitPrice, op.ExchangeOrderID, op.Status,
		op.ErrorClass, op.OpenedAt,
	).Scan(&op.ID)
}

// SetExchangeOrder records the filled entry's exchange order id on a claimed
// OPEN row, along with whether protective orders are still outstanding.
func (r *OperationRepository) SetExchangeOrder(ctx context.Context, id int64, orderID string, protectionPending bool) error {
	ctx, span := r.tracer.Start(ctx, "operation-repo.set-exchange-order")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE operations SET exchange_order_id = $2, protection_pending = $3
		 WHERE id = $1`,
		id, orderID, protectionPending,
	)
	return err
}

// MarkFailed transitions a claimed OPEN row to a terminal failure status
// after the exchange refused the entry. Releasing the OPEN slot lets a later
// signal open the symbol again.
func (r *OperationRepository) MarkFailed(ctx context.Context, id int64, status domain.OperationStatus, class domain.ErrorClass) error {
	ctx, span := r.tracer.Start(ctx, "operation-repo.mark-failed")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE operations SET status = $2, error_class = $3, closed_at = NOW()
		 WHERE id = $1 AND status = 'OPEN'`,
		id, status, class,
	)
	return err
}

// FindOpen returns the subscriber's OPEN operation on the symbol and side, or
// nil. A close intent names a direction; an open position on the opposite
// side is not a match.
func (r *OperationRepository) FindOpen(ctx context.Context, subscriberID int64, symbol string, side domain.Direction) (*domain.Operation, error) {
	ctx, span := r.tracer.Start(ctx, "operation-repo.find-open")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		selectOperation+` WHERE subscriber_id = $1 AND symbol = $2 AND side = $3 AND status = 'OPEN'`,
		subscriberID, symbol, side,
	)
	return scanOperation(row)
}

// Close transitions an OPEN operation to CLOSED. Rows are never deleted.
func (r *OperationRepository) Close(ctx context.Context, id int64, closedAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "operation-repo.close")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE operations SET status = 'CLOSED', closed_at = $2
		 WHERE id = $1 AND status = 'OPEN'`,
		id, closedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ClearProtectionPending records that the missing protective orders were
// placed by reconciliation.
func (r *OperationRepository) ClearProtectionPending(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "operation-repo.clear-protection-pending")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE operations SET protection_pending = false WHERE id = $1`,
		id,
	)
	return err
}

// CountOpen counts the subscriber's OPEN operations across all symbols, for
// the max-concurrent-positions cap.
func (r *OperationRepository) CountOpen(ctx context.Context, subscriberID int64) (int, error) {
	ctx, span := r.tracer.Start(ctx, "operation-repo.count-open")
	defer span.End()

	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM operations WHERE subscriber_id = $1 AND status = 'OPEN'`,
		subscriberID,
	).Scan(&count)
	return count, err
}

func (r *OperationRepository) ListBySubscriber(ctx context.Context, subscriberID int64, limit int) ([]domain.Operation, error) {
	ctx, span := r.tracer.Start(ctx, "operation-repo.list-by-subscriber")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		selectOperation+` WHERE subscriber_id = $1 ORDER BY opened_at DESC LIMIT $2`,
		subscriberID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOperations(rows)
}

func (r *OperationRepository) ListBySignal(ctx context.Context, signalID int64) ([]domain.Operation, error) {
	ctx, span := r.tracer.Start(ctx, "operation-repo.list-by-signal")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		selectOperation+` WHERE signal_id = $1 ORDER BY id`,
		signalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOperations(rows)
}

// ListProtectionPending feeds the reconciliation sweep with entries whose
// protective orders never landed.
func (r *OperationRepository) ListProtectionPending(ctx context.Context) ([]domain.Operation, error) {
	ctx, span := r.tracer.Start(ctx, "operation-repo.list-protection-pending")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		selectOperation+` WHERE status = 'OPEN' AND protection_pending ORDER BY opened_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOperations(rows)
}

const selectOperation = `
SELECT id, signal_id, subscriber_id, symbol, side, quantity, entry_price,
       stop_loss_price, take_profit_price, exchange_order_id, status,
       error_class, protection_pending, opened_at, closed_at
FROM operations`

func scanOperation(row pgx.Row) (*domain.Operation, error) {
	op := &domain.Operation{}
	err := row.Scan(&op.ID, &op.SignalID, &op.SubscriberID, &op.Symbol, &op.Side,
		&op.Quantity, &op.EntryPrice, &op.StopLossPrice, &op.TakeProfitPrice,
		&op.ExchangeOrderID, &op.Status, &op.ErrorClass, &op.ProtectionPending,
		&op.OpenedAt, &op.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	op.OpenedAt = op.OpenedAt.UTC()
	return op, nil
}

func collectOperations(rows pgx.Rows) ([]domain.Operation, error) {
	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}
