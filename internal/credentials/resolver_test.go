package credentials

import (
	"context"
	"errors"
	"testing"

	"tradepilot/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKeyHex)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Encrypt("super-secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "super-secret" {
		t.Fatalf("unexpected plaintext %q", got)
	}
}

func TestCipherRejectsWrongKey(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Encrypt("super-secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	other, err := NewCipher("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	if _, err := other.Decrypt(sealed); err == nil {
		t.Fatal("decrypt with wrong key should fail")
	}
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	if _, err := NewCipher("deadbeef"); err == nil {
		t.Fatal("short key should be rejected")
	}
	if _, err := NewCipher("not-hex"); err == nil {
		t.Fatal("non-hex key should be rejected")
	}
}

type credentialStoreStub struct {
	owned      *domain.CredentialSet
	lookupErr  error
	flaggedIDs []int64
	saved      *domain.CredentialSet
}

func (s *credentialStoreStub) GetActiveForSubscriber(ctx context.Context, subscriberID int64, exchange string) (*domain.CredentialSet, error) {
	return s.owned, s.lookupErr
}

func (s *credentialStoreStub) MarkValidationFailed(ctx context.Context, credentialID int64) error {
	s.flaggedIDs = append(s.flaggedIDs, credentialID)
	return nil
}

func (s *credentialStoreStub) Save(ctx context.Context, set *domain.CredentialSet) error {
	s.saved = set
	return nil
}

var _ Store = (*credentialStoreStub)(nil)

func TestResolvePrefersOwnedSet(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Encrypt("owned-secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	subID := int64(7)
	store := &credentialStoreStub{owned: &domain.CredentialSet{
		ID:               42,
		SubscriberID:     &subID,
		Exchange:         "bybit",
		Environment:      domain.EnvironmentLive,
		APIKey:           "owned-key",
		EncryptedSecret:  sealed,
		IsActive:         true,
		ValidationStatus: domain.ValidationVerified,
	}}
	r := NewResolver(
		trace.NewNoopTracerProvider().Tracer("test"),
		store,
		c,
		Fallback{Exchange: "bybit", APIKey: "fb-key", APISecret: "fb-secret"},
	)

	set, err := r.Resolve(context.Background(), subID, "bybit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.APIKey != "owned-key" || set.Secret != "owned-secret" {
		t.Fatalf("expected owned set to win, got %+v", set)
	}
	if set.EncryptedSecret != nil {
		t.Fatal("resolved set should not carry ciphertext")
	}
}

func TestResolveFallsBackToProcessWideSet(t *testing.T) {
	r := NewResolver(
		trace.NewNoopTracerProvider().Tracer("test"),
		&credentialStoreStub{},
		testCipher(t),
		Fallback{Exchange: "bybit", APIKey: "fb-key", APISecret: "fb-secret", Environment: domain.EnvironmentTest},
	)

	set, err := r.Resolve(context.Background(), 9, "bybit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Fallback() {
		t.Fatal("expected fallback set")
	}
	if set.APIKey != "fb-key" || set.Secret != "fb-secret" {
		t.Fatalf("unexpected fallback set: %+v", set)
	}
}

func TestResolveSkipsUnverifiedOwnedSet(t *testing.T) {
	subID := int64(7)
	store := &credentialStoreStub{owned: &domain.CredentialSet{
		ID:               42,
		SubscriberID:     &subID,
		Exchange:         "bybit",
		APIKey:           "owned-key",
		IsActive:         true,
		ValidationStatus: domain.ValidationFailed,
	}}
	r := NewResolver(
		trace.NewNoopTracerProvider().Tracer("test"),
		store,
		testCipher(t),
		Fallback{Exchange: "bybit", APIKey: "fb-key", APISecret: "fb-secret"},
	)

	set, err := r.Resolve(context.Background(), subID, "bybit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Fallback() {
		t.Fatal("failed-validation set should yield to fallback")
	}
}

func TestResolveNoCredentials(t *testing.T) {
	r := NewResolver(trace.NewNoopTracerProvider().Tracer("test"), &credentialStoreStub{}, testCipher(t), Fallback{})

	_, err := r.Resolve(context.Background(), 9, "bybit")
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestEnrollSealsSecretBeforeStoring(t *testing.T) {
	c := testCipher(t)
	store := &credentialStoreStub{}
	r := NewResolver(trace.NewNoopTracerProvider().Tracer("test"), store, c, Fallback{})

	set, err := r.Enroll(context.Background(), 7, "bybit", domain.EnvironmentTest, "sub-key", "sub-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.saved == nil {
		t.Fatal("expected set persisted")
	}
	if set.Secret != "" {
		t.Fatal("enrolled set must not carry the clear secret")
	}
	if string(store.saved.EncryptedSecret) == "sub-secret" {
		t.Fatal("secret stored in clear")
	}
	if got, err := c.Decrypt(store.saved.EncryptedSecret); err != nil || got != "sub-secret" {
		t.Fatalf("ciphertext does not round-trip: %q %v", got, err)
	}
	if store.saved.ValidationStatus != domain.ValidationVerified || !store.saved.IsActive {
		t.Fatalf("unexpected stored set: %+v", store.saved)
	}
}

func TestEnrollRequiresCipher(t *testing.T) {
	r := NewResolver(trace.NewNoopTracerProvider().Tracer("test"), &credentialStoreStub{}, nil, Fallback{})
	if _, err := r.Enroll(context.Background(), 7, "bybit", domain.EnvironmentLive, "k", "s"); err == nil {
		t.Fatal("enroll without cipher should fail")
	}
}

func TestFlagRejectedSkipsFallback(t *testing.T) {
	store := &credentialStoreStub{}
	r := NewResolver(trace.NewNoopTracerProvider().Tracer("test"), store, testCipher(t), Fallback{})

	if err := r.FlagRejected(context.Background(), &domain.CredentialSet{Exchange: "bybit"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.flaggedIDs) != 0 {
		t.Fatal("fallback set must not be flagged")
	}

	subID := int64(3)
	if err := r.FlagRejected(context.Background(), &domain.CredentialSet{ID: 11, SubscriberID: &subID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.flaggedIDs) != 1 || store.flaggedIDs[0] != 11 {
		t.Fatalf("expected credential 11 flagged, got %v", store.flaggedIDs)
	}
}
