package handler

import (
	"context"

	"tradepilot/internal/domain"
	"tradepilot/internal/signal"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type SignalIngestor interface {
	Ingest(ctx context.Context, payload signal.WebhookPayload) (*domain.Signal, error)
}

type SignalReader interface {
	Recent(ctx context.Context, limit int) ([]domain.Signal, error)
	GetByID(ctx context.Context, id int64) (*domain.Signal, error)
}

type OperationReader interface {
	ListBySubscriber(ctx context.Context, subscriberID int64, limit int) ([]domain.Operation, error)
	ListBySignal(ctx context.Context, signalID int64) ([]domain.Operation, error)
}

type RiskStore interface {
	Get(ctx context.Context, subscriberID int64) (domain.RiskProfile, error)
	Upsert(ctx context.Context, p domain.RiskProfile) error
}

type RegimeService interface {
	Current() domain.MarketRegime
	Refresh(ctx context.Context) (domain.MarketRegime, error)
}

type CredentialEnroller interface {
	Enroll(ctx context.Context, subscriberID int64, exchange string, env domain.Environment, apiKey, secret string) (*domain.CredentialSet, error)
}

type Handler struct {
	tracer       trace.Tracer
	ingestor     SignalIngestor
	signals      SignalReader
	operations   OperationReader
	risks        RiskStore
	regime       RegimeService
	enroller     CredentialEnroller
	webhookToken string
}

func New(tracer trace.Tracer, ingestor SignalIngestor, signals SignalReader, operations OperationReader, risks RiskStore, regime RegimeService, enroller CredentialEnroller, webhookToken string) *Handler {
	return &Handler{
		tracer:       tracer,
		ingestor:     ingestor,
		signals:      signals,
		operations:   operations,
		risks:        risks,
		regime:       regime,
		enroller:     enroller,
		webhookToken: webhookToken,
	}
}

// RegisterRoutes wires the intake webhook and the admin read API. adminKey
// guards everything under /api; the webhook has its own shared token.
func (h *Handler) RegisterRoutes(r *gin.Engine, adminKey string) {
	r.GET("/health", h.Health)
	r.POST("/webhook/signal", h.ReceiveSignal)

	api := r.Group("/api", APIKeyAuth(adminKey))
	api.GET("/signals", h.ListSignals)
	api.GET("/signals/:id", h.GetSignal)
	api.GET("/subscribers/:id/operations", h.ListOperations)
	api.GET("/subscribers/:id/risk", h.GetRiskProfile)
	api.PUT("/subscribers/:id/risk", h.UpdateRiskProfile)
	api.POST("/subscribers/:id/credentials", h.EnrollCredentials)
	api.GET("/regime", h.GetRegime)
	api.POST("/regime/refresh", h.RefreshRegime)
}
