package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"geoscore/internal/chain/metrics"
	"geoscore/pkg/platform/circuit"
	"geoscore/pkg/requestcontext"
)

const (
	// NativeCoinType is the Sui native coin.
	NativeCoinType = "0x2::sui::SUI"

	methodGetTransactionBlock = "sui_getTransactionBlock"
	defaultTimeout            = 10 * time.Second
	maxResponseBytes          = 4 << 20
)

// SuiVerifier calls sui_getTransactionBlock on a full node and sums the
// absolute native-coin balance changes. There is no retry loop; callers
// decide whether a retryable error is worth another attempt.
type SuiVerifier struct {
	endpoint string
	coinType string
	client   *http.Client
	timeout  time.Duration
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type SuiOption func(*SuiVerifier)

func WithHTTPClient(c *http.Client) SuiOption {
	return func(v *SuiVerifier) {
		v.client = c
	}
}

// WithTimeout bounds a single RPC call.
func WithTimeout(d time.Duration) SuiOption {
	return func(v *SuiVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithCoinType(coinType string) SuiOption {
	return func(v *SuiVerifier) {
		if coinType != "" {
			v.coinType = coinType
		}
	}
}

func WithBreaker(b *circuit.Breaker) SuiOption {
	return func(v *SuiVerifier) {
		v.breaker = b
	}
}

func WithLogger(logger *slog.Logger) SuiOption {
	return func(v *SuiVerifier) {
		v.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) SuiOption {
	return func(v *SuiVerifier) {
		v.metrics = m
	}
}

func NewSuiVerifier(endpoint string, opts ...SuiOption) *SuiVerifier {
	v := &SuiVerifier{
		endpoint: endpoint,
		coinType: NativeCoinType,
		client:   &http.Client{},
		timeout:  defaultTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("geoscore/chain"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type txBlockOptions struct {
	ShowEffects        bool `json:"showEffects"`
	ShowEvents         bool `json:"showEvents"`
	ShowBalanceChanges bool `json:"showBalanceChanges"`
}

type rpcResponse struct {
	Result *txBlock  `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type txBlock struct {
	Digest         string          `json:"digest"`
	BalanceChanges []balanceChange `json:"balanceChanges"`
}

type balanceChange struct {
	CoinType *string      `json:"coinType"`
	Amount   *amountField `json:"amount"`
}

// amountField accepts the amount as a JSON string (the node's encoding) or
// a bare number.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number: %w", err)
	}
	*a = amountField(n.String())
	return nil
}

// FetchVerifiedAmount implements Verifier.
func (v *SuiVerifier) FetchVerifiedAmount(ctx context.Context, txReference string) (decimal.Decimal, error) {
	ctx, span := v.tracer.Start(ctx, "chain.FetchVerifiedAmount",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("chain.tx_reference", txReference)),
	)
	defer span.End()

	if v.breaker != nil && !v.breaker.Allow() {
		err := NewVerificationError(ErrorProviderOutage, txReference, "ledger rpc circuit open", nil)
		v.recordFailure(span, err)
		return decimal.Zero, err
	}

	start := time.Now()
	amount, err := v.fetch(ctx, txReference)
	if err != nil {
		v.metrics.ObserveRPC("error", time.Since(start))
		var ve *VerificationError
		if errors.As(err, &ve) && ve.Retryable {
			v.breakerFailure(ctx)
		} else {
			v.breakerSuccess(ctx)
		}
		v.recordFailure(span, err)
		return decimal.Zero, err
	}
	v.metrics.ObserveRPC("ok", time.Since(start))
	v.breakerSuccess(ctx)

	span.SetAttributes(attribute.String("chain.amount", amount.String()))
	return amount, nil
}

func (v *SuiVerifier) fetch(ctx context.Context, txReference string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  methodGetTransactionBlock,
		Params: []any{txReference, txBlockOptions{
			ShowEffects:        true,
			ShowEvents:         true,
			ShowBalanceChanges: true,
		}},
	})
	if err != nil {
		return decimal.Zero, NewVerificationError(ErrorBadData, txReference, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, NewVerificationError(ErrorProviderOutage, txReference, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return decimal.Zero, classifyTransportError(ctx, txReference, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return decimal.Zero, classifyTransportError(ctx, txReference, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return decimal.Zero, NewVerificationError(ErrorRateLimited, txReference, "ledger rpc rate limited", nil)
	case resp.StatusCode >= 500:
		return decimal.Zero, NewVerificationError(ErrorProviderOutage, txReference,
			fmt.Sprintf("ledger rpc returned %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return decimal.Zero, NewVerificationError(ErrorBadData, txReference,
			fmt.Sprintf("ledger rpc returned %d", resp.StatusCode), nil)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decimal.Zero, NewVerificationError(ErrorBadData, txReference, "malformed rpc response", err)
	}
	if decoded.Error != nil {
		category := ErrorBadData
		if looksLikeNotFound(decoded.Error.Message) {
			category = ErrorNotFound
		}
		return decimal.Zero, NewVerificationError(category, txReference,
			fmt.Sprintf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message), nil)
	}
	if decoded.Result == nil {
		return decimal.Zero, NewVerificationError(ErrorBadData, txReference, "rpc response has no result", nil)
	}

	amount, matched, err := sumNativeChanges(decoded.Result.BalanceChanges, v.coinType)
	if err != nil {
		return decimal.Zero, NewVerificationError(ErrorBadData, txReference, "unparseable balance change", err)
	}
	if matched == 0 {
		v.logger.WarnContext(ctx, "transaction moved no native coin",
			"request_id", requestcontext.RequestID(ctx),
			"tx_reference", txReference,
			"coin_type", v.coinType,
			"balance_changes", len(decoded.Result.BalanceChanges),
		)
	}
	return amount, nil
}

// sumNativeChanges adds |amount| over changes in coinType. Entries missing
// either field are skipped; a present but unparseable amount is an error.
func sumNativeChanges(changes []balanceChange, coinType string) (decimal.Decimal, int, error) {
	total := decimal.Zero
	matched := 0
	for _, c := range changes {
		if c.CoinType == nil || c.Amount == nil {
			continue
		}
		if !SameCoinType(*c.CoinType, coinType) {
			continue
		}
		amt, err := decimal.NewFromString(strings.TrimSpace(string(*c.Amount)))
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("amount %q: %w", string(*c.Amount), err)
		}
		total = total.Add(amt.Abs())
		matched++
	}
	return total, matched, nil
}

func classifyTransportError(ctx context.Context, txReference string, err error) *VerificationError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return NewVerificationError(ErrorTimeout, txReference, "ledger rpc timed out", err)
	}
	return NewVerificationError(ErrorProviderOutage, txReference, "ledger rpc unreachable", err)
}

func looksLikeNotFound(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "could not find") || strings.Contains(m, "not found")
}

func (v *SuiVerifier) breakerFailure(ctx context.Context) {
	if v.breaker == nil {
		return
	}
	if _, change := v.breaker.RecordFailure(); change.Opened {
		v.metrics.SetBreakerOpen(true)
		v.logger.WarnContext(ctx, "ledger rpc circuit opened", "breaker", v.breaker.Name())
	}
}

func (v *SuiVerifier) breakerSuccess(ctx context.Context) {
	if v.breaker == nil {
		return
	}
	if _, change := v.breaker.RecordSuccess(); change.Closed {
		v.metrics.SetBreakerOpen(false)
		v.logger.InfoContext(ctx, "ledger rpc circuit closed", "breaker", v.breaker.Name())
	}
}

func (v *SuiVerifier) recordFailure(span trace.Span, err error) {
	category := "unknown"
	if ve, ok := AsVerificationError(err); ok {
		category = string(ve.Category)
	}
	v.metrics.IncrementFailure(category)
	span.RecordError(err)
	span.SetStatus(codes.Error, category)
}
