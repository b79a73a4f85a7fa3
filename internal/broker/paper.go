package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/agents"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/models"
	"macro-trader/pkg/utils"
)

// CandleReader is the slice of the store the paper broker prices from.
type CandleReader interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	Candles        CandleReader
	InitialBalance float64
	SpreadPips     float64 // default 1.0
	PriceTimeframe string  // timeframe whose last close is the mid price, default H1
}

type paperPosition struct {
	models.OpenPosition
	StopLoss   float64
	TakeProfit float64
}

// PaperBroker simulates a forex account on top of stored candles.
type PaperBroker struct {
	candles        CandleReader
	spreadPips     float64
	priceTimeframe string
	logger         zerolog.Logger
	now            func() time.Time

	mu        sync.RWMutex
	balance   float64
	positions map[string]*paperPosition
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig, logger zerolog.Logger) *PaperBroker {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	if cfg.SpreadPips <= 0 {
		cfg.SpreadPips = 1.0
	}
	if cfg.PriceTimeframe == "" {
		cfg.PriceTimeframe = "H1"
	}
	return &PaperBroker{
		candles:        cfg.Candles,
		spreadPips:     cfg.SpreadPips,
		priceTimeframe: cfg.PriceTimeframe,
		logger:         logger.With().Str("component", "paper_broker").Logger(),
		now:            time.Now,
		balance:        cfg.InitialBalance,
		positions:      make(map[string]*paperPosition),
	}
}

// SetClock overrides the time source. Used by tests.
func (p *PaperBroker) SetClock(now func() time.Time) {
	p.now = now
}

// FetchCandles returns the latest stored candles.
func (p *PaperBroker) FetchCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	symbol = strings.ToUpper(symbol)
	candles, err := p.candles.GetCandles(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, apperrors.NewDataError("candles", symbol+"/"+timeframe, "no stored candles", apperrors.ErrDataNotFound)
	}
	return candles, nil
}

// GetSymbolPrice quotes the last stored close with the configured spread.
func (p *PaperBroker) GetSymbolPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	candles, err := p.FetchCandles(ctx, symbol, p.priceTimeframe, 1)
	if err != nil {
		return nil, err
	}
	last := candles[len(candles)-1]
	half := p.spreadPips * models.PipSize(symbol) / 2
	return &models.Quote{
		Symbol: strings.ToUpper(symbol),
		Bid:    last.Close - half,
		Ask:    last.Close + half,
		Time:   last.Time,
	}, nil
}

// GetAccountEquity returns balance plus unrealized P&L. Positions that
// cannot be priced contribute nothing.
func (p *PaperBroker) GetAccountEquity(ctx context.Context) (float64, error) {
	p.mu.RLock()
	balance := p.balance
	open := make([]paperPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		open = append(open, *pos)
	}
	p.mu.RUnlock()

	equity := balance
	for _, pos := range open {
		q, err := p.GetSymbolPrice(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		equity += positionPnL(pos.OpenPosition, exitPrice(pos.Direction, q))
	}
	return equity, nil
}

// Balance returns realized cash.
func (p *PaperBroker) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

// PlaceOrder fills market orders at the touch and pullback orders at their
// limit price.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderFill, error) {
	if err := ValidateOrder(req); err != nil {
		return nil, apperrors.Wrap(err, "paper order rejected")
	}

	var fill float64
	if req.OrderType == models.OrderTypeLimitPullback {
		fill = req.LimitPrice
	} else {
		q, err := p.GetSymbolPrice(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		fill = entryPrice(req.Direction, q)
	}

	symbol := strings.ToUpper(req.Symbol)
	now := p.now()
	sl, tp := StopLevels(symbol, req.Direction, fill, req.StopLossPips, req.TakeProfitPips)
	ticket := utils.NewIDAt(now)

	p.mu.Lock()
	p.positions[ticket] = &paperPosition{
		OpenPosition: models.OpenPosition{
			Ticket:    ticket,
			Symbol:    symbol,
			Direction: req.Direction,
			Volume:    req.Volume,
			OpenPrice: fill,
			OpenedAt:  now,
		},
		StopLoss:   sl,
		TakeProfit: tp,
	}
	p.mu.Unlock()

	p.logger.Info().
		Str("ticket", ticket).
		Str("symbol", symbol).
		Str("direction", string(req.Direction)).
		Float64("volume", req.Volume).
		Float64("fill", fill).
		Msg("Paper order filled")

	return &models.OrderFill{Ticket: ticket, FillPrice: fill, StopLoss: sl, TakeProfit: tp, FilledAt: now}, nil
}

// OpenPositions lists simulated positions, oldest first.
func (p *PaperBroker) OpenPositions(ctx context.Context) ([]models.OpenPosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.OpenPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos.OpenPosition)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// ClosePosition closes a position at the current price and returns the
// realized P&L in account currency.
func (p *PaperBroker) ClosePosition(ctx context.Context, ticket string) (float64, error) {
	p.mu.RLock()
	pos, ok := p.positions[ticket]
	p.mu.RUnlock()
	if !ok {
		return 0, apperrors.NewDataError("position", ticket, "no open position", apperrors.ErrDataNotFound)
	}

	q, err := p.GetSymbolPrice(ctx, pos.Symbol)
	if err != nil {
		return 0, fmt.Errorf("price %s for close: %w", pos.Symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok = p.positions[ticket]
	if !ok {
		return 0, apperrors.NewDataError("position", ticket, "closed concurrently", apperrors.ErrDataNotFound)
	}
	pnl := positionPnL(pos.OpenPosition, exitPrice(pos.Direction, q))
	p.balance += pnl
	delete(p.positions, ticket)
	return pnl, nil
}

func entryPrice(dir models.Direction, q *models.Quote) float64 {
	if dir == models.DirectionSell {
		return q.Bid
	}
	return q.Ask
}

func exitPrice(dir models.Direction, q *models.Quote) float64 {
	if dir == models.DirectionSell {
		return q.Ask
	}
	return q.Bid
}

// positionPnL values a move in pips using the approximate pip value table.
func positionPnL(pos models.OpenPosition, exit float64) float64 {
	move := exit - pos.OpenPrice
	if pos.Direction == models.DirectionSell {
		move = -move
	}
	pips := move / models.PipSize(pos.Symbol)
	return pips * agents.PipValuePerLot(pos.Symbol) * pos.Volume
}
