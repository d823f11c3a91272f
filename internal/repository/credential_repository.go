package repository

import (
	"context"
	"errors"

	"tradepilot/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type CredentialRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewCredentialRepository(pool PgxPool, tracer trace.Tracer) *CredentialRepository {
	return &CredentialRepository{pool: pool, tracer: tracer}
}

// GetActiveForSubscriber returns the subscriber's active set for the
// exchange, or nil when none exists. The secret stays encrypted here; the
// resolver decrypts at the moment of use.
func (r *CredentialRepository) GetActiveForSubscriber(ctx context.Context, subscriberID int64, exchange string) (*domain.CredentialSet, error) {
	ctx, span := r.tracer.Start(ctx, "credential-repo.get-active-for-subscriber")
	defer span.End()

	c := &domain.CredentialSet{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, subscriber_id, exchange, environment, api_key, encrypted_secret, is_active, validation_status
		 FROM credential_sets
		 WHERE subscriber_id = $1 AND exchange = $2 AND is_active
		 ORDER BY id DESC
		 LIMIT 1`,
		subscriberID, exchange,
	).Scan(&c.ID, &c.SubscriberID, &c.Exchange, &c.Environment, &c.APIKey,
		&c.EncryptedSecret, &c.IsActive, &c.ValidationStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MarkValidationFailed flags a set after the exchange rejected its key. The
// resolver skips FAILED sets until an operator re-verifies them.
func (r *CredentialRepository) MarkValidationFailed(ctx context.Context, credentialID int64) error {
	ctx, span := r.tracer.Start(ctx, "credential-repo.mark-validation-failed")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE credential_sets SET validation_status = $2 WHERE id = $1`,
		credentialID, domain.ValidationFailed,
	)
	return err
}

// Save stores a new set with an already-encrypted secret and deactivates any
// previous set for the same subscriber and exchange.
func (r *CredentialRepository) Save(ctx context.Context, c *domain.CredentialSet) error {
	ctx, span := r.tracer.Start(ctx, "credential-repo.save")
	defer span.End()

	if _, err := r.pool.Exec(ctx,
		`UPDATE credential_sets SET is_active = false
		 WHERE subscriber_id = $1 AND exchange = $2 AND is_active`,
		c.SubscriberID, c.Exchange,
	); err != nil {
		return err
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO credential_sets
		     (subscriber_id, exchange, environment, api_key, encrypted_secret, is_active, validation_status)
		 VALUES ($1, $2, $3, $4, $5, true, $6)
		 RETURNING id`,
		c.SubscriberID, c.Exchange, c.Environment, c.APIKey, c.EncryptedSecret, c.ValidationStatus,
	).Scan(&c.ID)
}
