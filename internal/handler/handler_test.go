package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradepilot/internal/domain"
	"tradepilot/internal/signal"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type ingestorStub struct {
	sig *domain.Signal
	err error
}

var _ SignalIngestor = (*ingestorStub)(nil)

func (s *ingestorStub) Ingest(ctx context.Context, payload signal.WebhookPayload) (*domain.Signal, error) {
	return s.sig, s.err
}

type signalReaderStub struct {
	signals []domain.Signal
	byID    *domain.Signal
}

func (s *signalReaderStub) Recent(ctx context.Context, limit int) ([]domain.Signal, error) {
	return s.signals, nil
}

func (s *signalReaderStub) GetByID(ctx context.Context, id int64) (*domain.Signal, error) {
	return s.byID, nil
}

type operationReaderStub struct {
	operations []domain.Operation
}

func (s *operationReaderStub) ListBySubscriber(ctx context.Context, subscriberID int64, limit int) ([]domain.Operation, error) {
	return s.operations, nil
}

func (s *operationReaderStub) ListBySignal(ctx context.Context, signalID int64) ([]domain.Operation, error) {
	return s.operations, nil
}

type riskStoreStub struct {
	saved *domain.RiskProfile
}

func (s *riskStoreStub) Get(ctx context.Context, subscriberID int64) (domain.RiskProfile, error) {
	return domain.DefaultRiskProfile(subscriberID), nil
}

func (s *riskStoreStub) Upsert(ctx context.Context, p domain.RiskProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.saved = &p
	return nil
}

type regimeServiceStub struct {
	regime domain.MarketRegime
	err    error
}

func (s *regimeServiceStub) Current() domain.MarketRegime {
	return s.regime
}

func (s *regimeServiceStub) Refresh(ctx context.Context) (domain.MarketRegime, error) {
	return s.regime, s.err
}

type enrollerStub struct {
	enrolled *domain.CredentialSet
	err      error
}

func (s *enrollerStub) Enroll(ctx context.Context, subscriberID int64, exchange string, env domain.Environment, apiKey, secret string) (*domain.CredentialSet, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.enrolled = &domain.CredentialSet{
		ID:           21,
		SubscriberID: &subscriberID,
		Exchange:     exchange,
		Environment:  env,
		APIKey:       apiKey,
	}
	return s.enrolled, nil
}

type testEnv struct {
	router   *gin.Engine
	ingestor *ingestorStub
	risks    *riskStoreStub
	enroller *enrollerStub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		ingestor: &ingestorStub{sig: &domain.Signal{ID: 1, Status: domain.ProcessingPending}},
		risks:    &riskStoreStub{},
		enroller: &enrollerStub{},
	}
	h := New(
		trace.NewNoopTracerProvider().Tracer("test"),
		env.ingestor,
		&signalReaderStub{signals: []domain.Signal{{ID: 1, Symbol: "BTCUSDT"}}, byID: &domain.Signal{ID: 1, Symbol: "BTCUSDT"}},
		&operationReaderStub{operations: []domain.Operation{{ID: 3, SignalID: 1}}},
		env.risks,
		&regimeServiceStub{regime: domain.MarketRegime{Score: 25, AllowedDirection: domain.LongOnly}},
		env.enroller,
		"hook-token",
	)
	env.router = gin.New()
	h.RegisterRoutes(env.router, "admin-key")
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func webhookRequest(body, token string) *http.Request {
	url := "/webhook/signal"
	if token != "" {
		url += "?token=" + token
	}
	req, _ := http.NewRequest("POST", url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const validSignalBody = `{"external_id":"tv-1","symbol":"BTCUSDT","action":"SINAL LONG FORTE","price":50000}`

func TestReceiveSignalAcceptsValidDelivery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(webhookRequest(validSignalBody, "hook-token"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unparseable response: %v", err)
	}
	if resp["signal_id"] != float64(1) {
		t.Fatalf("expected signal_id 1, got %v", resp["signal_id"])
	}
}

func TestReceiveSignalAcceptsTokenHeader(t *testing.T) {
	env := newTestEnv(t)

	req := webhookRequest(validSignalBody, "")
	req.Header.Set("X-Webhook-Token", "hook-token")
	if w := env.do(req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with header token, got %d", w.Code)
	}
}

func TestReceiveSignalRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(webhookRequest(validSignalBody, "wrong")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}
	if w := env.do(webhookRequest(validSignalBody, "")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", w.Code)
	}
}

func TestReceiveSignalRejectsMalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(webhookRequest(`{"symbol":"BTCUSDT"}`, "hook-token"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", w.Code)
	}
}

func TestReceiveSignalSplitsValidationFromPersistenceFailures(t *testing.T) {
	env := newTestEnv(t)
	env.ingestor.sig = nil
	env.ingestor.err = fmt.Errorf("%w: parse action: no recognizable intent", signal.ErrInvalidPayload)

	if w := env.do(webhookRequest(validSignalBody, "hook-token")); w.Code != http.StatusBadRequest {
		t.Fatalf("validation failure must answer 400, got %d", w.Code)
	}

	env.ingestor.err = errors.New("persist signal: connection refused")
	if w := env.do(webhookRequest(validSignalBody, "hook-token")); w.Code != http.StatusInternalServerError {
		t.Fatalf("persistence failure must answer 500 so the source retries, got %d", w.Code)
	}
}

func TestReceiveSignalReportsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.ingestor.sig = &domain.Signal{ID: 9, Status: domain.ProcessingSuccess}
	env.ingestor.err = signal.ErrDuplicate

	w := env.do(webhookRequest(validSignalBody, "hook-token"))
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate must answer 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"duplicate":true`) {
		t.Fatalf("expected duplicate flag in %s", w.Body.String())
	}
}

func TestAdminAPIRequiresKey(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest("GET", "/api/signals", nil)
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req, _ = http.NewRequest("GET", "/api/signals", nil)
	req.Header.Set("X-API-Key", "nope")
	if w := env.do(req); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", w.Code)
	}

	req, _ = http.NewRequest("GET", "/api/signals", nil)
	req.Header.Set("X-API-Key", "admin-key")
	if w := env.do(req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", w.Code)
	}
}

func TestGetSignalIncludesOperations(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest("GET", "/api/signals/1", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"operations"`) {
		t.Fatalf("expected operations in %s", w.Body.String())
	}
}

func TestUpdateRiskProfileRejectsOutOfBounds(t *testing.T) {
	env := newTestEnv(t)

	body := `{"balance_percent_per_trade":90,"leverage":3,"take_profit_multiplier":3,"stop_loss_multiplier":2,"max_concurrent_positions":3}`
	req, _ := http.NewRequest("PUT", "/api/subscribers/5/risk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "admin-key")

	w := env.do(req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if env.risks.saved != nil {
		t.Fatal("invalid profile must not be saved")
	}
}

func TestUpdateRiskProfileStoresValidProfile(t *testing.T) {
	env := newTestEnv(t)

	body := `{"balance_percent_per_trade":25,"leverage":4,"take_profit_multiplier":3,"stop_loss_multiplier":2,"max_concurrent_positions":2}`
	req, _ := http.NewRequest("PUT", "/api/subscribers/5/risk", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "admin-key")

	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.risks.saved == nil || env.risks.saved.SubscriberID != 5 {
		t.Fatalf("profile not stored for subscriber 5: %+v", env.risks.saved)
	}
}

func TestEnrollCredentialsNeverEchoesSecret(t *testing.T) {
	env := newTestEnv(t)

	body := `{"exchange":"bybit","api_key":"sub-key","api_secret":"sub-secret","testnet":true}`
	req, _ := http.NewRequest("POST", "/api/subscribers/7/credentials", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "admin-key")

	w := env.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "sub-secret") {
		t.Fatalf("secret echoed back: %s", w.Body.String())
	}
	if env.enroller.enrolled == nil || env.enroller.enrolled.Environment != domain.EnvironmentTest {
		t.Fatalf("unexpected enrollment: %+v", env.enroller.enrolled)
	}
}

func TestEnrollCredentialsRejectsPartialPayload(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest("POST", "/api/subscribers/7/credentials", strings.NewReader(`{"exchange":"bybit"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "admin-key")

	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing key pair, got %d", w.Code)
	}
}

func TestGetRegime(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest("GET", "/api/regime", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"LONG_ONLY"`) {
		t.Fatalf("expected regime direction in %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
