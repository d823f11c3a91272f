package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradepilot/internal/domain"
	"tradepilot/internal/risk"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	liveBaseURL = "https://api.bybit.com"
	testBaseURL = "https://api-testnet.bybit.com"

	orderCreatePath   = "/v5/order/create"
	walletBalancePath = "/v5/account/wallet-balance"
)

// Outcome classifies the exchange's answer to a submission.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeCredentialRejected
	OutcomeExchangeRejected
	OutcomeThrottled
	OutcomeTransportError
)

func (o Outcome) Retryable() bool {
	return o == OutcomeThrottled || o == OutcomeTransportError
}

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeCredentialRejected:
		return "credential_rejected"
	case OutcomeExchangeRejected:
		return "exchange_rejected"
	case OutcomeThrottled:
		return "throttled"
	default:
		return "transport_error"
	}
}

// Result is the classified outcome of one exchange call (after retries).
type Result struct {
	Outcome           Outcome
	OrderID           string
	RetCode           int
	Message           string
	Attempts          int
	PartialProtection bool
}

// Client submits signed orders to a Bybit v5-style REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	testURL    string
	recvWindow int
	tracer     trace.Tracer
	limiter    *RateLimiter
	retry      RetryPolicy
	nowFunc    func() time.Time
}

func NewClient(tracer trace.Tracer, timeout time.Duration, recvWindow int, retry RetryPolicy) *Client {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    liveBaseURL,
		testURL:    testBaseURL,
		recvWindow: recvWindow,
		tracer:     tracer,
		limiter:    NewRateLimiter(50, 1200*time.Millisecond),
		retry:      retry,
		nowFunc:    time.Now,
	}
}

// Submit runs the two-phase order flow: the market entry first, then the
// protective stop-loss and take-profit as opposite-side conditional orders.
// Protection failure never rolls back a filled entry; the result carries
// PartialProtection so the operation can be flagged for reconciliation.
func (c *Client) Submit(ctx context.Context, creds *domain.CredentialSet, spec risk.OrderSpec) Result {
	ctx, span := c.tracer.Start(ctx, "exchange.submit")
	defer span.End()

	entry := c.retry.Do(ctx, func(ctx context.Context) Result {
		return c.placeEntry(ctx, creds, spec)
	})
	if entry.Outcome != OutcomeAccepted {
		return entry
	}

	if err := c.placeProtection(ctx, creds, spec); err != nil {
		entry.PartialProtection = true
		entry.Message = fmt.Sprintf("protective orders failed: %v", err)
	}
	return entry
}

// Equity fetches the account's unified equity in USDT.
func (c *Client) Equity(ctx context.Context, creds *domain.CredentialSet) (float64, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.equity")
	defer span.End()

	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	params.Set("coin", "USDT")

	resp, result := c.doSigned(ctx, creds, http.MethodGet, walletBalancePath, params)
	if result.Outcome != OutcomeAccepted {
		return 0, fmt.Errorf("wallet balance %s: %s", result.Outcome, result.Message)
	}

	var body struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return 0, fmt.Errorf("parse wallet balance: %w", err)
	}
	if len(body.List) == 0 {
		return 0, fmt.Errorf("wallet balance response has no accounts")
	}
	equity, err := strconv.ParseFloat(body.List[0].TotalEquity, 64)
	if err != nil {
		return 0, fmt.Errorf("parse equity %q: %w", body.List[0].TotalEquity, err)
	}
	return equity, nil
}

// ClosePosition submits a reduce-only market order on the opposite side.
func (c *Client) ClosePosition(ctx context.Context, creds *domain.CredentialSet, symbol string, side domain.Direction, quantity float64) Result {
	ctx, span := c.tracer.Start(ctx, "exchange.close-position")
	defer span.End()

	return c.retry.Do(ctx, func(ctx context.Context) Result {
		params := orderParams(symbol, side.Opposite(), quantity)
		params.Set("reduceOnly", "true")
		_, result := c.doSigned(ctx, creds, http.MethodPost, orderCreatePath, params)
		return result
	})
}

func (c *Client) placeEntry(ctx context.Context, creds *domain.CredentialSet, spec risk.OrderSpec) Result {
	params := orderParams(spec.Symbol, spec.Side, spec.Quantity)
	_, result := c.doSigned(ctx, creds, http.MethodPost, orderCreatePath, params)
	return result
}

func (c *Client) placeProtection(ctx context.Context, creds *domain.CredentialSet, spec risk.OrderSpec) error {
	exitSide := spec.Side.Opposite()

	stop := orderParams(spec.Symbol, exitSide, spec.Quantity)
	stop.Set("reduceOnly", "true")
	stop.Set("triggerPrice", formatFloat(spec.StopLossPrice))
	stop.Set("triggerDirection", triggerDirection(spec.Side, false))
	if _, result := c.doSigned(ctx, creds, http.MethodPost, orderCreatePath, stop); result.Outcome != OutcomeAccepted {
		return fmt.Errorf("stop-loss %s: %s", result.Outcome, result.Message)
	}

	target := orderParams(spec.Symbol, exitSide, spec.Quantity)
	target.Set("reduceOnly", "true")
	target.Set("triggerPrice", formatFloat(spec.TakeProfitPrice))
	target.Set("triggerDirection", triggerDirection(spec.Side, true))
	if _, result := c.doSigned(ctx, creds, http.MethodPost, orderCreatePath, target); result.Outcome != OutcomeAccepted {
		return fmt.Errorf("take-profit %s: %s", result.Outcome, result.Message)
	}
	return nil
}

// doSigned performs one authenticated call and classifies the response.
// The raw result payload is returned for callers that parse it.
func (c *Client) doSigned(ctx context.Context, creds *domain.CredentialSet, method, path string, params url.Values) ([]byte, Result) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Result{Outcome: OutcomeTransportError, Message: err.Error()}
	}

	timestamp := strconv.FormatInt(c.nowFunc().UnixMilli(), 10)
	recvWindow := strconv.Itoa(c.recvWindow)
	canonical := params.Encode() // url.Values.Encode sorts keys in ASCII order

	signature := Sign(creds.Secret, timestamp, creds.APIKey, recvWindow, canonical)

	endpoint := c.endpointFor(creds) + path
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+canonical, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(canonical))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, Result{Outcome: OutcomeTransportError, Message: err.Error()}
	}

	req.Header.Set("X-BAPI-API-KEY", creds.APIKey)
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Result{Outcome: OutcomeTransportError, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Result{Outcome: OutcomeTransportError, Message: err.Error()}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, Result{Outcome: OutcomeThrottled, Message: "http 429"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Result{Outcome: OutcomeTransportError, Message: fmt.Sprintf("http %d: %s", resp.StatusCode, raw)}
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, Result{Outcome: OutcomeTransportError, Message: fmt.Sprintf("parse response: %v", err)}
	}

	result := classify(envelope.RetCode, envelope.RetMsg)
	if len(envelope.Result) > 0 {
		var inner struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(envelope.Result, &inner); err == nil {
			result.OrderID = inner.OrderID
		}
	}
	return envelope.Result, result
}

func (c *Client) endpointFor(creds *domain.CredentialSet) string {
	if creds.Environment == domain.EnvironmentTest {
		return c.testURL
	}
	return c.baseURL
}

// Sign computes the request authenticity proof:
// hex(HMAC-SHA256(secret, timestamp || apiKey || recvWindow || canonicalParams)).
func Sign(secret, timestamp, apiKey, recvWindow, canonicalParams string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + apiKey + recvWindow + canonicalParams))
	return hex.EncodeToString(mac.Sum(nil))
}

// classify maps exchange return codes onto the error taxonomy. Auth and
// IP-restriction codes are terminal; rate limits are retryable.
func classify(retCode int, retMsg string) Result {
	switch retCode {
	case 0:
		return Result{Outcome: OutcomeAccepted, RetCode: retCode, Message: retMsg}
	case 10003, 10004, 10005, 10010, 33004:
		// invalid/expired key, bad signature, permission denied, IP mismatch
		return Result{Outcome: OutcomeCredentialRejected, RetCode: retCode, Message: retMsg}
	case 10006, 10018:
		return Result{Outcome: OutcomeThrottled, RetCode: retCode, Message: retMsg}
	default:
		// The transport was healthy and the exchange answered no: insufficient
		// balance, bad quantity step and the like. Resubmitting the same order
		// cannot change the answer.
		return Result{Outcome: OutcomeExchangeRejected, RetCode: retCode, Message: retMsg}
	}
}

func orderParams(symbol string, side domain.Direction, quantity float64) url.Values {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("side", orderSide(side))
	params.Set("orderType", "Market")
	params.Set("qty", formatFloat(quantity))
	params.Set("orderLinkId", uuid.NewString())
	return params
}

func orderSide(d domain.Direction) string {
	if d == domain.DirectionLong {
		return "Buy"
	}
	return "Sell"
}

// triggerDirection encodes which way price must move to fire the conditional
// order: 1 = trigger on rise, 2 = trigger on fall.
func triggerDirection(entrySide domain.Direction, takeProfit bool) string {
	rising := (entrySide == domain.DirectionLong) == takeProfit
	if rising {
		return "1"
	}
	return "2"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
