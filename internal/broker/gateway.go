package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"macro-trader/internal/config"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/logging"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
	"macro-trader/internal/resilience"
	"macro-trader/pkg/utils"
)

// Collaborator names used in errors, logs and metrics.
const (
	CollabMarketData = "market_data"
	CollabExecution  = "order_execution"
)

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Temporary reports whether retrying could help.
func (e *StatusError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// transient is true for errors worth retrying and counting against the
// circuit: transport failures, 429 and 5xx.
func transient(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

type candlesResponse struct {
	Candles []models.Candle `json:"candles"`
}

type positionsResponse struct {
	Positions []models.OpenPosition `json:"positions"`
}

// GatewayClient talks to a JSON market-data and execution gateway.
type GatewayClient struct {
	client   *resty.Client
	breakers *resilience.CircuitBreakerRegistry
	retry    utils.RetryConfig
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// NewGatewayClient creates a gateway client. Every call runs behind a
// per-operation circuit breaker and is retried on transient failures.
func NewGatewayClient(cfg config.GatewayConfig, logger zerolog.Logger) *GatewayClient {
	logger = logger.With().Str("component", "gateway").Logger()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	cbCfg := resilience.DefaultCircuitBreakerConfig()
	cbCfg.IsFailure = transient
	cbCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).
			Msg("Gateway circuit changed state")
	}

	retry := utils.DefaultRetryConfig()
	retry.Retryable = transient

	return &GatewayClient{
		client:   client,
		breakers: resilience.NewCircuitBreakerRegistry(cbCfg),
		retry:    retry,
		logger:   logger,
	}
}

// SetMetrics attaches a metrics recorder.
func (g *GatewayClient) SetMetrics(m *metrics.Recorder) {
	g.metrics = m
}

// SetRetry overrides the retry policy. The transient-error filter is kept.
func (g *GatewayClient) SetRetry(cfg utils.RetryConfig) {
	cfg.Retryable = transient
	g.retry = cfg
}

// Breakers exposes the circuit breakers for status reporting.
func (g *GatewayClient) Breakers() *resilience.CircuitBreakerRegistry {
	return g.breakers
}

// call runs fn behind the operation's breaker with retries and converts the
// final failure into a CollaboratorError.
func call[T any](ctx context.Context, g *GatewayClient, collaborator, op string, retry utils.RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	cb := g.breakers.Get(collaborator + "." + op)

	v, err := utils.RetryWithResult(ctx, retry, func() (T, error) {
		return resilience.ExecuteWithResult(cb, ctx, fn)
	})
	logging.LogCollaboratorCall(g.logger, collaborator, op, time.Since(start), err)
	if err != nil {
		var zero T
		g.metrics.RecordCollaboratorError(collaborator, op)
		return zero, apperrors.NewCollaboratorError(collaborator, op, err)
	}
	return v, nil
}

func decode[T any](resp *resty.Response, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if resp.IsError() {
		return out, &StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return out, fmt.Errorf("decode gateway response: %w", err)
	}
	return out, nil
}

// FetchCandles returns the latest count candles, oldest first.
func (g *GatewayClient) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	return call(ctx, g, CollabMarketData, "fetch_candles", g.retry, func(ctx context.Context) ([]models.Candle, error) {
		out, err := decode[candlesResponse](g.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    strings.ToUpper(symbol),
				"timeframe": strings.ToUpper(timeframe),
				"count":     strconv.Itoa(count),
			}).
			Get("/candles"))
		if err != nil {
			return nil, err
		}
		return out.Candles, nil
	})
}

// GetSymbolPrice returns the current bid and ask.
func (g *GatewayClient) GetSymbolPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	return call(ctx, g, CollabMarketData, "get_symbol_price", g.retry, func(ctx context.Context) (*models.Quote, error) {
		q, err := decode[models.Quote](g.client.R().
			SetContext(ctx).
			SetQueryParam("symbol", strings.ToUpper(symbol)).
			Get("/price"))
		if err != nil {
			return nil, err
		}
		if q.Bid <= 0 || q.Ask <= 0 {
			return nil, fmt.Errorf("gateway quote for %s has no price", symbol)
		}
		if q.Symbol == "" {
			q.Symbol = strings.ToUpper(symbol)
		}
		return &q, nil
	})
}

// GetAccountEquity returns account equity.
func (g *GatewayClient) GetAccountEquity(ctx context.Context) (float64, error) {
	return call(ctx, g, CollabMarketData, "get_account_equity", g.retry, func(ctx context.Context) (float64, error) {
		acct, err := decode[models.AccountInfo](g.client.R().SetContext(ctx).Get("/account"))
		if err != nil {
			return 0, err
		}
		return acct.Equity, nil
	})
}

// PlaceOrder sends an order. Orders are never retried, so a timeout cannot
// produce a duplicate fill.
func (g *GatewayClient) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderFill, error) {
	if err := ValidateOrder(req); err != nil {
		return nil, apperrors.NewCollaboratorError(CollabExecution, "place_order", err)
	}
	once := g.retry
	once.MaxAttempts = 1

	return call(ctx, g, CollabExecution, "place_order", once, func(ctx context.Context) (*models.OrderFill, error) {
		fill, err := decode[models.OrderFill](g.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post("/orders"))
		if err != nil {
			return nil, err
		}
		if fill.Ticket == "" {
			return nil, fmt.Errorf("gateway accepted order without a ticket")
		}
		return &fill, nil
	})
}

// OpenPositions lists positions held at the gateway.
func (g *GatewayClient) OpenPositions(ctx context.Context) ([]models.OpenPosition, error) {
	return call(ctx, g, CollabExecution, "open_positions", g.retry, func(ctx context.Context) ([]models.OpenPosition, error) {
		out, err := decode[positionsResponse](g.client.R().SetContext(ctx).Get("/positions"))
		if err != nil {
			return nil, err
		}
		return out.Positions, nil
	})
}
