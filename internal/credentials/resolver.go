package credentials

import (
	"context"
	"errors"
	"fmt"

	"tradepilot/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// ErrNoCredentials means neither a subscriber-owned set nor the process-wide
// fallback exists for the exchange. The subscriber is skipped, not failed.
var ErrNoCredentials = errors.New("no resolvable credential set")

type Store interface {
	GetActiveForSubscriber(ctx context.Context, subscriberID int64, exchange string) (*domain.CredentialSet, error)
	MarkValidationFailed(ctx context.Context, credentialID int64) error
	Save(ctx context.Context, set *domain.CredentialSet) error
}

// Fallback is the process-wide credential set read from deployment
// configuration. Zero value means no fallback is configured.
type Fallback struct {
	Exchange    string
	APIKey      string
	APISecret   string
	Environment domain.Environment
}

func (f Fallback) configured() bool {
	return f.APIKey != "" && f.APISecret != ""
}

// Resolver applies the strict precedence list: subscriber-owned active
// validated set first, process-wide fallback second.
type Resolver struct {
	tracer   trace.Tracer
	store    Store
	cipher   *Cipher
	fallback Fallback
}

func NewResolver(tracer trace.Tracer, store Store, cipher *Cipher, fallback Fallback) *Resolver {
	return &Resolver{tracer: tracer, store: store, cipher: cipher, fallback: fallback}
}

// Resolve returns a credential set with the secret decrypted and ready for
// signing. The decrypted secret lives only in the returned value; callers
// must not log or persist it.
func (r *Resolver) Resolve(ctx context.Context, subscriberID int64, exchange string) (*domain.CredentialSet, error) {
	_, span := r.tracer.Start(ctx, "credentials.resolve")
	defer span.End()

	owned, err := r.store.GetActiveForSubscriber(ctx, subscriberID, exchange)
	if err != nil {
		return nil, fmt.Errorf("lookup subscriber credentials: %w", err)
	}
	if owned != nil && owned.ValidationStatus == domain.ValidationVerified {
		if r.cipher == nil {
			return nil, fmt.Errorf("credential cipher not configured")
		}
		secret, err := r.cipher.Decrypt(owned.EncryptedSecret)
		if err != nil {
			return nil, fmt.Errorf("decrypt credentials for subscriber %d: %w", subscriberID, err)
		}
		out := *owned
		out.Secret = secret
		out.EncryptedSecret = nil
		return &out, nil
	}

	if r.fallback.configured() && r.fallback.Exchange == exchange {
		return &domain.CredentialSet{
			SubscriberID:     nil,
			Exchange:         r.fallback.Exchange,
			Environment:      r.fallback.Environment,
			APIKey:           r.fallback.APIKey,
			Secret:           r.fallback.APISecret,
			IsActive:         true,
			ValidationStatus: domain.ValidationVerified,
		}, nil
	}

	return nil, ErrNoCredentials
}

// Enroll encrypts and stores a subscriber's key pair, replacing any previous
// active set for the exchange. The clear secret is sealed immediately and
// never leaves this function; the returned set carries only the ciphertext.
func (r *Resolver) Enroll(ctx context.Context, subscriberID int64, exchange string, env domain.Environment, apiKey, secret string) (*domain.CredentialSet, error) {
	if r.cipher == nil {
		return nil, fmt.Errorf("credential cipher not configured")
	}
	ctx, span := r.tracer.Start(ctx, "credentials.enroll")
	defer span.End()

	sealed, err := r.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials for subscriber %d: %w", subscriberID, err)
	}
	set := &domain.CredentialSet{
		SubscriberID:     &subscriberID,
		Exchange:         exchange,
		Environment:      env,
		APIKey:           apiKey,
		EncryptedSecret:  sealed,
		IsActive:         true,
		ValidationStatus: domain.ValidationVerified,
	}
	if err := r.store.Save(ctx, set); err != nil {
		return nil, fmt.Errorf("store credentials for subscriber %d: %w", subscriberID, err)
	}
	return set, nil
}

// FlagRejected marks a stored set for re-validation after the exchange
// rejected its key. Fallback sets have no row to flag.
func (r *Resolver) FlagRejected(ctx context.Context, set *domain.CredentialSet) error {
	if set == nil || set.Fallback() || set.ID == 0 {
		return nil
	}
	_, span := r.tracer.Start(ctx, "credentials.flag-rejected")
	defer span.End()
	return r.store.MarkValidationFailed(ctx, set.ID)
}
