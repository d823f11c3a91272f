package domain

import (
	"errors"
	"time"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the exit side for a position opened in this direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthStrong Strength = "STRONG"
)

type ProcessingStatus string

const (
	ProcessingPending ProcessingStatus = "PENDING"
	ProcessingSuccess ProcessingStatus = "SUCCESS"
	ProcessingFailed  ProcessingStatus = "FAILED"
)

// Signal is one externally-sourced trade instruction. ExternalID, when the
// source provides one, deduplicates webhook re-deliveries.
type Signal struct {
	ID          int64            `json:"id"`
	ExternalID  *string          `json:"external_id,omitempty"`
	Symbol      string           `json:"symbol"`
	Direction   Direction        `json:"direction"`
	Strength    Strength         `json:"strength"`
	CloseIntent bool             `json:"close_intent"`
	Price       float64          `json:"price"`
	ReceivedAt  time.Time        `json:"received_at"`
	Status      ProcessingStatus `json:"processing_status"`
}

// Dispatchable reports whether the signal reaches the orchestrator at all.
// Weak non-close signals are stored for analytics but never dispatched.
func (s Signal) Dispatchable() bool {
	return s.CloseIntent || s.Strength == StrengthStrong
}

type Subscriber struct {
	ID             int64     `json:"id"`
	Active         bool      `json:"active"`
	TradingEnabled bool      `json:"trading_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s Subscriber) Eligible() bool {
	return s.Active && s.TradingEnabled
}

type Environment string

const (
	EnvironmentLive Environment = "LIVE"
	EnvironmentTest Environment = "TEST"
)

type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "PENDING"
	ValidationVerified ValidationStatus = "VERIFIED"
	ValidationFailed   ValidationStatus = "FAILED"
)

// CredentialSet is an exchange API key pair. SubscriberID is nil for the
// process-wide fallback set. Secret is only populated after decryption at
// the moment of use; it is never persisted in clear.
type CredentialSet struct {
	ID               int64
	SubscriberID     *int64
	Exchange         string
	Environment      Environment
	APIKey           string
	Secret           string
	EncryptedSecret  []byte
	IsActive         bool
	ValidationStatus ValidationStatus
}

// Fallback reports whether this is the process-wide set.
func (c CredentialSet) Fallback() bool {
	return c.SubscriberID == nil
}

// RiskProfile bounds are enforced at write time; readers may assume any
// stored profile is valid.
type RiskProfile struct {
	SubscriberID           int64   `json:"subscriber_id"`
	BalancePercentPerTrade float64 `json:"balance_percent_per_trade"`
	Leverage               int     `json:"leverage"`
	TakeProfitMultiplier   float64 `json:"take_profit_multiplier"`
	StopLossMultiplier     float64 `json:"stop_loss_multiplier"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
}

var ErrInvalidRiskParameters = errors.New("risk parameters out of bounds")

func (p RiskProfile) Validate() error {
	if p.BalancePercentPerTrade < 10 || p.BalancePercentPerTrade > 50 {
		return ErrInvalidRiskParameters
	}
	if p.Leverage < 1 || p.Leverage > 10 {
		return ErrInvalidRiskParameters
	}
	if p.TakeProfitMultiplier <= 0 || p.StopLossMultiplier <= 0 {
		return ErrInvalidRiskParameters
	}
	if p.MaxConcurrentPositions < 1 || p.MaxConcurrentPositions > 5 {
		return ErrInvalidRiskParameters
	}
	return nil
}

// DefaultRiskProfile applies when a subscriber has no stored profile.
func DefaultRiskProfile(subscriberID int64) RiskProfile {
	return RiskProfile{
		SubscriberID:           subscriberID,
		BalancePercentPerTrade: 20,
		Leverage:               3,
		TakeProfitMultiplier:   3,
		StopLossMultiplier:     2,
		MaxConcurrentPositions: 3,
	}
}

type AllowedDirection string

const (
	LongOnly  AllowedDirection = "LONG_ONLY"
	ShortOnly AllowedDirection = "SHORT_ONLY"
	Both      AllowedDirection = "BOTH"
)

// MarketRegime is an immutable point-in-time sentiment snapshot. The regime
// service swaps whole snapshots atomically; readers never see a partial
// update.
type MarketRegime struct {
	Score            int              `json:"score"`
	AllowedDirection AllowedDirection `json:"allowed_direction"`
	FetchedAt        time.Time        `json:"fetched_at"`
	StaleAfter       time.Time        `json:"stale_after"`
}

// RegimeFromScore classifies the tradable direction space: extreme fear
// permits longs only, extreme greed permits shorts only.
func RegimeFromScore(score int, fetchedAt time.Time, ttl time.Duration) MarketRegime {
	dir := Both
	if score < 30 {
		dir = LongOnly
	} else if score > 80 {
		dir = ShortOnly
	}
	return MarketRegime{
		Score:            score,
		AllowedDirection: dir,
		FetchedAt:        fetchedAt.UTC(),
		StaleAfter:       fetchedAt.UTC().Add(ttl),
	}
}

// Allows reports whether opening a position in the given direction is
// permitted under this regime.
func (r MarketRegime) Allows(d Direction) bool {
	switch r.AllowedDirection {
	case LongOnly:
		return d == DirectionLong
	case ShortOnly:
		return d == DirectionShort
	default:
		return true
	}
}

func (r MarketRegime) Stale(now time.Time) bool {
	return now.After(r.StaleAfter)
}

type OperationStatus string

const (
	OperationOpen     OperationStatus = "OPEN"
	OperationClosed   OperationStatus = "CLOSED"
	OperationRejected OperationStatus = "REJECTED"
	OperationError    OperationStatus = "ERROR"
)

// ErrorClass labels a terminal non-open outcome on an Operation row.
type ErrorClass string

const (
	ErrorClassNone               ErrorClass = ""
	ErrorClassCredentialRejected ErrorClass = "CREDENTIAL_REJECTED"
	ErrorClassExchangeRejected   ErrorClass = "EXCHANGE_REJECTED"
	ErrorClassThrottled          ErrorClass = "THROTTLED"
	ErrorClassTransport          ErrorClass = "TRANSPORT_ERROR"
	ErrorClassInvalidRisk        ErrorClass = "INVALID_RISK_PARAMETERS"
)

// Operation is one subscriber's attempt to act on one signal. Rows are
// append-only; closure is a status transition, never a delete.
type Operation struct {
	ID                int64           `json:"id"`
	SignalID          int64           `json:"signal_id"`
	SubscriberID      int64           `json:"subscriber_id"`
	Symbol            string          `json:"symbol"`
	Side              Direction       `json:"side"`
	Quantity          float64         `json:"quantity"`
	EntryPrice        float64         `json:"entry_price"`
	StopLossPrice     float64         `json:"stop_loss_price"`
	TakeProfitPrice   float64         `json:"take_profit_price"`
	ExchangeOrderID   string          `json:"exchange_order_id"`
	Status            OperationStatus `json:"status"`
	ErrorClass        ErrorClass      `json:"error_class,omitempty"`
	ProtectionPending bool            `json:"protection_pending"`
	OpenedAt          time.Time       `json:"opened_at"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
}
