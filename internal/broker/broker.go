// Package broker provides the market data and order execution collaborators.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/config"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
)

// MarketData supplies prices and account figures.
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
	GetSymbolPrice(ctx context.Context, symbol string) (*models.Quote, error)
	GetAccountEquity(ctx context.Context) (float64, error)
}

// OrderExecutor places orders.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderFill, error)
}

// PositionSource lists open positions.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]models.OpenPosition, error)
}

// Broker is a full collaborator: data, execution and positions.
type Broker interface {
	MarketData
	OrderExecutor
	PositionSource
}

var timeframes = map[string]time.Duration{
	"M1":  time.Minute,
	"M5":  5 * time.Minute,
	"M15": 15 * time.Minute,
	"M30": 30 * time.Minute,
	"H1":  time.Hour,
	"H4":  4 * time.Hour,
	"D1":  24 * time.Hour,
}

// TimeframeDuration returns the bar length of a timeframe such as "H1".
func TimeframeDuration(tf string) (time.Duration, error) {
	d, ok := timeframes[strings.ToUpper(tf)]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
	return d, nil
}

// ValidateOrder checks an order before it leaves the process.
func ValidateOrder(req models.OrderRequest) error {
	if _, _, ok := models.SplitSymbol(req.Symbol); !ok {
		return fmt.Errorf("invalid symbol %q", req.Symbol)
	}
	if req.Direction != models.DirectionBuy && req.Direction != models.DirectionSell {
		return fmt.Errorf("order direction must be BUY or SELL, got %q", req.Direction)
	}
	if req.Volume <= 0 {
		return fmt.Errorf("order volume must be positive, got %.2f", req.Volume)
	}
	if req.StopLossPips < 0 || req.TakeProfitPips < 0 {
		return fmt.Errorf("stop distances must not be negative")
	}
	if req.OrderType == models.OrderTypeLimitPullback && req.LimitPrice <= 0 {
		return fmt.Errorf("pullback order needs a limit price")
	}
	return nil
}

// ExposureBySymbol sums open volume per symbol.
func ExposureBySymbol(positions []models.OpenPosition) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for _, p := range positions {
		out[strings.ToUpper(p.Symbol)] += p.Volume
	}
	return out
}

// StopLevels converts pip distances into absolute stop-loss and take-profit
// prices around entry. A zero distance yields a zero level.
func StopLevels(symbol string, dir models.Direction, entry, slPips, tpPips float64) (sl, tp float64) {
	pip := models.PipSize(symbol)
	sign := 1.0
	if dir == models.DirectionSell {
		sign = -1.0
	}
	if slPips > 0 {
		sl = entry - sign*slPips*pip
	}
	if tpPips > 0 {
		tp = entry + sign*tpPips*pip
	}
	return sl, tp
}

// NewFromConfig builds the broker named by [trading].broker. The paper
// broker prices from candles.
func NewFromConfig(cfg *config.Config, candles CandleReader, logger zerolog.Logger) (Broker, error) {
	switch strings.ToLower(cfg.Trading.Broker) {
	case "", "paper":
		return NewPaperBroker(PaperBrokerConfig{
			Candles:        candles,
			InitialBalance: cfg.Trading.PaperEquity,
			PriceTimeframe: cfg.Engine.EntryTimeframe,
		}, logger), nil
	case "gateway":
		if cfg.Gateway.BaseURL == "" {
			return nil, apperrors.Wrap(apperrors.ErrConfigMissing, "gateway.base_url")
		}
		return NewGatewayClient(cfg.Gateway, logger), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown broker %q", cfg.Trading.Broker)
	}
}
