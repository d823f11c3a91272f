package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tradepilot/internal/credentials"
	"tradepilot/internal/domain"
	"tradepilot/internal/exchange"
	"tradepilot/internal/repository"
	"tradepilot/internal/risk"

	"go.opentelemetry.io/otel/trace"
)

type SubscriberStore interface {
	ListEligible(ctx context.Context) ([]domain.Subscriber, error)
}

type RiskStore interface {
	Get(ctx context.Context, subscriberID int64) (domain.RiskProfile, error)
}

type OperationStore interface {
	Open(ctx context.Context, op *domain.Operation) error
	RecordFailure(ctx context.Context, op *domain.Operation) error
	SetExchangeOrder(ctx context.Context, id int64, orderID string, protectionPending bool) error
	MarkFailed(ctx context.Context, id int64, status domain.OperationStatus, class domain.ErrorClass) error
	FindOpen(ctx context.Context, subscriberID int64, symbol string, side domain.Direction) (*domain.Operation, error)
	Close(ctx context.Context, id int64, closedAt time.Time) error
	CountOpen(ctx context.Context, subscriberID int64) (int, error)
}

type SignalStore interface {
	UpdateStatus(ctx context.Context, id int64, status domain.ProcessingStatus) error
}

type CredentialResolver interface {
	Resolve(ctx context.Context, subscriberID int64, exchange string) (*domain.CredentialSet, error)
	FlagRejected(ctx context.Context, set *domain.CredentialSet) error
}

type RegimeSource interface {
	Current() domain.MarketRegime
}

type ExchangeClient interface {
	Submit(ctx context.Context, creds *domain.CredentialSet, spec risk.OrderSpec) exchange.Result
	Equity(ctx context.Context, creds *domain.CredentialSet) (float64, error)
	ClosePosition(ctx context.Context, creds *domain.CredentialSet, symbol string, side domain.Direction, quantity float64) exchange.Result
}

// Notifier pushes operator-facing alerts. Best effort; dispatch never blocks
// on it.
type Notifier interface {
	Notify(text string)
}

const defaultQueueSize = 256

// Orchestrator fans a dispatchable signal out to every eligible subscriber
// through a bounded worker pool. One subscriber's failure never touches
// another's pipeline; the signal completes when every pipeline reached a
// terminal outcome.
type Orchestrator struct {
	tracer      trace.Tracer
	subscribers SubscriberStore
	risks       RiskStore
	operations  OperationStore
	signals     SignalStore
	resolver    CredentialResolver
	regime      RegimeSource
	exchange    ExchangeClient
	calculator  *risk.Calculator
	notifier    Notifier

	exchangeName string
	workers      int
	queue        chan domain.Signal
	inflight     inflightRegistry
	nowFunc      func() time.Time
}

type Config struct {
	Subscribers SubscriberStore
	Risks       RiskStore
	Operations  OperationStore
	Signals     SignalStore
	Resolver    CredentialResolver
	Regime      RegimeSource
	Exchange    ExchangeClient
	Calculator  *risk.Calculator
	Notifier    Notifier

	// ExchangeName selects which credential sets resolve, e.g. "bybit".
	ExchangeName string
	Workers      int
	QueueSize    int
}

func NewOrchestrator(tracer trace.Tracer, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Orchestrator{
		tracer:       tracer,
		subscribers:  cfg.Subscribers,
		risks:        cfg.Risks,
		operations:   cfg.Operations,
		signals:      cfg.Signals,
		resolver:     cfg.Resolver,
		regime:       cfg.Regime,
		exchange:     cfg.Exchange,
		calculator:   cfg.Calculator,
		notifier:     cfg.Notifier,
		exchangeName: cfg.ExchangeName,
		workers:      cfg.Workers,
		queue:        make(chan domain.Signal, cfg.QueueSize),
		inflight:     inflightRegistry{entries: make(map[inflightKey]context.CancelFunc)},
		nowFunc:      time.Now,
	}
}

// Enqueue hands a persisted signal to the dispatch loop without blocking the
// intake path. A full queue drops the signal and leaves it PENDING for
// operator replay.
func (o *Orchestrator) Enqueue(sig domain.Signal) {
	select {
	case o.queue <- sig:
	default:
		log.Printf("dispatch queue full, signal %d left pending", sig.ID)
		o.notify(fmt.Sprintf("⚠️ dispatch queue full, signal %d (%s) not dispatched", sig.ID, sig.Symbol))
	}
}

// Run processes queued signals until ctx is cancelled. Each signal gets its
// own goroutine so a close intent dequeued mid-fan-out can abandon open
// attempts still in flight instead of queueing behind them; the ledger's
// conditional insert arbitrates any same-symbol race. Fan-outs running at
// cancellation finish; orders already submitted are never preempted.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sig := <-o.queue:
			wg.Add(1)
			go func(sig domain.Signal) {
				defer wg.Done()
				o.process(ctx, sig)
			}(sig)
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, sig domain.Signal) {
	ctx, span := o.tracer.Start(ctx, "dispatch.process")
	defer span.End()

	if sig.CloseIntent {
		o.fanOut(ctx, sig, o.closeForSubscriber)
		return
	}

	// The regime gate applies once per signal; close intents bypass it above
	// because exiting risk must always be possible.
	regime := o.regime.Current()
	if !regime.Allows(sig.Direction) {
		log.Printf("signal %d (%s %s) blocked by market regime %s (score %d)",
			sig.ID, sig.Symbol, sig.Direction, regime.AllowedDirection, regime.Score)
		o.finishSignal(ctx, sig, domain.ProcessingSuccess)
		return
	}

	o.fanOut(ctx, sig, o.openForSubscriber)
}

func (o *Orchestrator) fanOut(ctx context.Context, sig domain.Signal, pipeline func(ctx context.Context, sig domain.Signal, sub domain.Subscriber)) {
	subscribers, err := o.subscribers.ListEligible(ctx)
	if err != nil {
		log.Printf("list eligible subscribers for signal %d: %v", sig.ID, err)
		o.finishSignal(ctx, sig, domain.ProcessingFailed)
		return
	}
	if len(subscribers) == 0 {
		o.finishSignal(ctx, sig, domain.ProcessingSuccess)
		return
	}

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for _, sub := range subscribers {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub domain.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }()
			pipeline(ctx, sig, sub)
		}(sub)
	}
	wg.Wait()

	o.finishSignal(ctx, sig, domain.ProcessingSuccess)
}

// openForSubscriber runs one subscriber's open pipeline to a terminal
// outcome. Skips are logged, not persisted; failures after the ledger claim
// land as terminal operation rows.
func (o *Orchestrator) openForSubscriber(ctx context.Context, sig domain.Signal, sub domain.Subscriber) {
	ctx, span := o.tracer.Start(ctx, "dispatch.open-for-subscriber")
	defer span.End()

	// A FECHE arriving mid-pipeline abandons this attempt, but only until
	// the entry order is on the wire.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	key := inflightKey{SubscriberID: sub.ID, Symbol: sig.Symbol}
	o.inflight.register(key, cancel)
	defer o.inflight.unregister(key)

	creds, err := o.resolver.Resolve(ctx, sub.ID, o.exchangeName)
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			log.Printf("subscriber %d skipped for signal %d: no credentials", sub.ID, sig.ID)
			return
		}
		log.Printf("resolve credentials for subscriber %d: %v", sub.ID, err)
		o.recordFailure(ctx, sig, sub, domain.OperationError, domain.ErrorClassTransport)
		return
	}

	profile, err := o.risks.Get(ctx, sub.ID)
	if err != nil {
		log.Printf("load risk profile for subscriber %d: %v", sub.ID, err)
		o.recordFailure(ctx, sig, sub, domain.OperationError, domain.ErrorClassTransport)
		return
	}

	openCount, err := o.operations.CountOpen(ctx, sub.ID)
	if err != nil {
		log.Printf("count open operations for subscriber %d: %v", sub.ID, err)
		o.recordFailure(ctx, sig, sub, domain.OperationError, domain.ErrorClassTransport)
		return
	}
	if openCount >= profile.MaxConcurrentPositions {
		log.Printf("subscriber %d skipped for signal %d: %d open positions at cap", sub.ID, sig.ID, openCount)
		return
	}

	equity, err := o.exchange.Equity(ctx, creds)
	if err != nil {
		log.Printf("fetch equity for subscriber %d: %v", sub.ID, err)
		o.recordFailure(ctx, sig, sub, domain.OperationError, domain.ErrorClassTransport)
		return
	}

	spec, err := o.calculator.Build(sig, profile, equity)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRiskParameters) {
			o.recordFailure(ctx, sig, sub, domain.OperationRejected, domain.ErrorClassInvalidRisk)
			return
		}
		log.Printf("size order for subscriber %d: %v", sub.ID, err)
		o.recordFailure(ctx, sig, sub, domain.OperationError, domain.ErrorClassTransport)
		return
	}

	// Claim the OPEN slot before touching the exchange. The conditional
	// insert is the only arbiter: losing the race means another pipeline
	// already holds the symbol.
	op := &domain.Operation{
		SignalID:        sig.ID,
		SubscriberID:    sub.ID,
		Symbol:          sig.Symbol,
		Side:            spec.Side,
		Quantity:        spec.Quantity,
		EntryPrice:      spec.EntryPrice,
		StopLossPrice:   spec.StopLossPrice,
		TakeProfitPrice: spec.TakeProfitPrice,
		OpenedAt:        o.nowFunc().UTC(),
	}
	if err := o.operations.Open(ctx, op); err != nil {
		if errors.Is(err, repository.ErrOpenPositionExists) {
			log.Printf("subscriber %d skipped for signal %d: %s already open", sub.ID, sig.ID, sig.Symbol)
			return
		}
		log.Printf("claim ledger row for subscriber %d: %v", sub.ID, err)
		o.recordFailure(ctx, sig, sub, domain.OperationError, domain.ErrorClassTransport)
		return
	}

	if ctx.Err() != nil {
		// Abandoned by a close intent before submission. Release the claimed
		// slot on a context that survives the cancellation.
		o.markFailed(context.WithoutCancel(ctx), op.ID, domain.OperationRejected, domain.ErrorClassNone)
		log.Printf("open attempt for subscriber %d on %s abandoned before submit", sub.ID, sig.Symbol)
		return
	}

	// From here the order must not be preempted: a cancelled dispatch loop
	// or close intent cannot leave a naked fill behind.
	submitCtx := context.WithoutCancel(ctx)
	result := o.exchange.Submit(submitCtx, creds, spec)

	switch result.Outcome {
	case exchange.OutcomeAccepted:
		if err := o.operations.SetExchangeOrder(submitCtx, op.ID, result.OrderID, result.PartialProtection); err != nil {
			log.Printf("record exchange order for operation %d: %v", op.ID, err)
		}
		if result.PartialProtection {
			o.notify(fmt.Sprintf("⚠️ operation %d (subscriber %d, %s) filled without protective orders: %s",
				op.ID, sub.ID, sig.Symbol, result.Message))
		}
	case exchange.OutcomeCredentialRejected:
		if err := o.resolver.FlagRejected(submitCtx, creds); err != nil {
			log.Printf("flag rejected credentials for subscriber %d: %v", sub.ID, err)
		}
		o.markFailed(submitCtx, op.ID, domain.OperationRejected, domain.ErrorClassCredentialRejected)
	case exchange.OutcomeExchangeRejected:
		o.markFailed(submitCtx, op.ID, domain.OperationRejected, domain.ErrorClassExchangeRejected)
		o.notify(fmt.Sprintf("⚠️ entry for subscriber %d on %s rejected by the exchange: %s", sub.ID, sig.Symbol, result.Message))
	case exchange.OutcomeThrottled:
		o.markFailed(submitCtx, op.ID, domain.OperationError, domain.ErrorClassThrottled)
		o.notify(fmt.Sprintf("🚨 entry for subscriber %d on %s failed after %d attempts: throttled", sub.ID, sig.Symbol, result.Attempts))
	default:
		o.markFailed(submitCtx, op.ID, domain.OperationError, domain.ErrorClassTransport)
		o.notify(fmt.Sprintf("🚨 entry for subscriber %d on %s failed: %s", sub.ID, sig.Symbol, result.Message))
	}
}

// closeForSubscriber exits the subscriber's open position on the signal's
// symbol and direction, if any. A FECHE LONG never touches a short. Close
// intents also abandon not-yet-submitted open attempts for the same pair.
func (o *Orchestrator) closeForSubscriber(ctx context.Context, sig domain.Signal, sub domain.Subscriber) {
	ctx, span := o.tracer.Start(ctx, "dispatch.close-for-subscriber")
	defer span.End()

	o.inflight.abandon(inflightKey{SubscriberID: sub.ID, Symbol: sig.Symbol})

	op, err := o.operations.FindOpen(ctx, sub.ID, sig.Symbol, sig.Direction)
	if err != nil {
		log.Printf("find open operation for subscriber %d on %s: %v", sub.ID, sig.Symbol, err)
		return
	}
	if op == nil {
		return
	}

	creds, err := o.resolver.Resolve(ctx, sub.ID, o.exchangeName)
	if err != nil {
		log.Printf("resolve credentials to close operation %d: %v", op.ID, err)
		o.notify(fmt.Sprintf("🚨 cannot close operation %d (subscriber %d, %s): no usable credentials", op.ID, sub.ID, sig.Symbol))
		return
	}

	submitCtx := context.WithoutCancel(ctx)
	result := o.exchange.ClosePosition(submitCtx, creds, op.Symbol, op.Side, op.Quantity)
	if result.Outcome != exchange.OutcomeAccepted {
		log.Printf("close operation %d failed: %s (%s)", op.ID, result.Outcome, result.Message)
		o.notify(fmt.Sprintf("🚨 close order for operation %d (subscriber %d, %s) failed: %s", op.ID, sub.ID, sig.Symbol, result.Message))
		return
	}

	if err := o.operations.Close(submitCtx, op.ID, o.nowFunc().UTC()); err != nil {
		log.Printf("mark operation %d closed: %v", op.ID, err)
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, sig domain.Signal, sub domain.Subscriber, status domain.OperationStatus, class domain.ErrorClass) {
	op := &domain.Operation{
		SignalID:     sig.ID,
		SubscriberID: sub.ID,
		Symbol:       sig.Symbol,
		Side:         sig.Direction,
		EntryPrice:   sig.Price,
		Status:       status,
		ErrorClass:   class,
		OpenedAt:     o.nowFunc().UTC(),
	}
	if err := o.operations.RecordFailure(ctx, op); err != nil {
		log.Printf("record failure for subscriber %d on signal %d: %v", sub.ID, sig.ID, err)
	}
	if status == domain.OperationError {
		o.notify(fmt.Sprintf("🚨 dispatch error for subscriber %d on %s: %s", sub.ID, sig.Symbol, class))
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, opID int64, status domain.OperationStatus, class domain.ErrorClass) {
	if err := o.operations.MarkFailed(ctx, opID, status, class); err != nil {
		log.Printf("mark operation %d failed: %v", opID, err)
	}
}

func (o *Orchestrator) finishSignal(ctx context.Context, sig domain.Signal, status domain.ProcessingStatus) {
	if err := o.signals.UpdateStatus(ctx, sig.ID, status); err != nil {
		log.Printf("finish signal %d: %v", sig.ID, err)
	}
}

func (o *Orchestrator) notify(text string) {
	if o.notifier != nil {
		o.notifier.Notify(text)
	}
}

type inflightKey struct {
	SubscriberID int64
	Symbol       string
}

// inflightRegistry tracks open pipelines that have not yet submitted, so a
// close intent can abandon them instead of racing a fresh entry.
type inflightRegistry struct {
	mu      sync.Mutex
	entries map[inflightKey]context.CancelFunc
}

func (r *inflightRegistry) register(key inflightKey, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = cancel
}

func (r *inflightRegistry) unregister(key inflightKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

func (r *inflightRegistry) abandon(key inflightKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.entries[key]; ok {
		cancel()
		delete(r.entries, key)
	}
}
