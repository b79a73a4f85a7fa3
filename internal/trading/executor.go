package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/agents"
	"macro-trader/internal/broker"
	apperrors "macro-trader/internal/errors"
	"macro-trader/internal/logging"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
	"macro-trader/internal/store"
	"macro-trader/pkg/utils"
)

// pullbackShare is the share of the stop distance a pullback limit waits for.
const pullbackShare = 0.2

// TradeCallback places an order for a signal.
type TradeCallback func(ctx context.Context, req models.OrderRequest) (*models.OrderFill, error)

// CallbackFor adapts an order executor into a TradeCallback.
func CallbackFor(exec broker.OrderExecutor) TradeCallback {
	if exec == nil {
		return nil
	}
	return exec.PlaceOrder
}

// Account supplies what the risk gate needs at dispatch time.
type Account interface {
	GetAccountEquity(ctx context.Context) (float64, error)
	OpenPositions(ctx context.Context) ([]models.OpenPosition, error)
}

// Auditor records directional dispatch outcomes.
type Auditor interface {
	RecordDispatch(ctx context.Context, sig models.EventSignal, res models.ExecutionResult) error
}

// Executor generates signals from predictions and dispatches them according
// to the trading mode.
type Executor struct {
	mode      *ModeState
	guardian  *agents.Guardian
	principal string
	account   Account
	journal   store.SignalJournal
	audit     Auditor
	metrics   *metrics.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewExecutor creates an executor. guardian sizes every signal and gates
// directional dispatch.
func NewExecutor(mode *ModeState, guardian *agents.Guardian, principal string, logger zerolog.Logger) *Executor {
	if mode == nil {
		mode = NewModeState(models.ModeSignalOnly)
	}
	if principal == "" {
		principal = "default"
	}
	return &Executor{
		mode:      mode,
		guardian:  guardian,
		principal: principal,
		logger:    logger.With().Str("component", "executor").Logger(),
		now:       time.Now,
	}
}

// SetAccount attaches the account the risk gate reads equity and positions
// from. Without one, directional dispatch skips the gate.
func (e *Executor) SetAccount(a Account) { e.account = a }

// SetJournal attaches a signal journal.
func (e *Executor) SetJournal(j store.SignalJournal) { e.journal = j }

// SetAudit attaches an audit trail for orders that reach the risk gate.
func (e *Executor) SetAudit(a Auditor) { e.audit = a }

// SetMetrics attaches a metrics recorder.
func (e *Executor) SetMetrics(m *metrics.Recorder) { e.metrics = m }

// SetClock overrides the time source. Used by tests.
func (e *Executor) SetClock(now func() time.Time) { e.now = now }

// Mode returns the mode state.
func (e *Executor) Mode() *ModeState { return e.mode }

// Principal returns the account principal risk is tracked under.
func (e *Executor) Principal() string { return e.principal }

// GenerateSignal shapes a prediction into a signal on symbol. technicals may
// be nil.
func (e *Executor) GenerateSignal(ctx context.Context, pred *models.EventPrediction, symbol string, technicals *models.Technicals, equity float64) (*models.EventSignal, error) {
	if pred == nil {
		return nil, apperrors.NewValidationError("prediction", nil, "required")
	}
	if _, _, ok := models.SplitSymbol(symbol); !ok {
		return nil, apperrors.NewValidationError("symbol", symbol, "not a currency pair")
	}
	symbol = strings.ToUpper(symbol)

	dir := ResolveDirection(pred.PredictedOutcome, pred.Currency, symbol)
	levels := LevelsFor(pred.EventName)
	now := e.now()

	sig := &models.EventSignal{
		ID:             utils.NewIDAt(now),
		EventName:      pred.EventName,
		Currency:       pred.Currency,
		Symbol:         symbol,
		Direction:      dir,
		Probability:    pred.Probability,
		Confidence:     pred.Confidence,
		EntryStyle:     EntryStyleFor(pred.Probability, pred.Confidence),
		EntryLogic:     "market on release",
		StopLossPips:   levels.StopLossPips,
		TakeProfitPips: levels.TakeProfitPips,
		RiskReward:     levels.RiskReward(),
		AvgPips:        pred.AvgPips,
		TrendForecast:  pred.TrendForecast,
		OrderType:      models.OrderTypeMarket,
		Mode:           e.mode.Get(),
		Reasoning:      pred.Recommendation,
		CreatedAt:      now,
	}
	if !pred.EventTime.IsZero() {
		sig.EventKey = models.CalendarEvent{Name: pred.EventName, Currency: pred.Currency, Time: pred.EventTime}.Key()
	}

	if technicals != nil {
		sig.PriceHint = technicals.Close
		if Overextended(dir, technicals.RSI) {
			sig.OrderType = models.OrderTypeLimitPullback
			sig.PriceHint = pullbackPrice(symbol, dir, technicals.Close, levels.StopLossPips)
			state := "overbought"
			if dir == models.DirectionSell {
				state = "oversold"
			}
			sig.EntryLogic = fmt.Sprintf("limit on pullback (%s RSI %.1f %s)", technicals.Timeframe, technicals.RSI, state)
		}
	}

	if e.guardian != nil {
		sig.Volume = e.guardian.CalculateLots(equity, symbol, levels.StopLossPips, pred.Confidence, e.principal)
	} else {
		sig.Volume = agents.MinLots
	}

	e.metrics.RecordSignal(string(sig.Direction), string(sig.Mode))
	if e.journal != nil {
		if err := e.journal.SaveSignal(ctx, sig); err != nil {
			e.logger.Warn().Err(err).Str("signal_id", sig.ID).Msg("Failed to journal signal")
		}
	}
	return sig, nil
}

func pullbackPrice(symbol string, dir models.Direction, close, slPips float64) float64 {
	offset := slPips * pullbackShare * models.PipSize(symbol)
	if dir == models.DirectionSell {
		return close + offset
	}
	return close - offset
}

// ExecuteSignal dispatches sig in the mode it was generated under. It never
// returns an error: every outcome is a result.
func (e *Executor) ExecuteSignal(ctx context.Context, sig *models.EventSignal, callback TradeCallback) models.ExecutionResult {
	if sig == nil {
		return models.ExecutionResult{Status: models.StatusSkipped, Mode: e.mode.Get(), Message: "no signal"}
	}
	mode := sig.Mode
	if mode == "" {
		mode = e.mode.Get()
	}

	res := e.dispatch(ctx, sig, mode, callback)
	res.Mode = mode
	logging.LogSignal(e.logger, *sig, res)
	e.recordAudit(ctx, sig, res)
	return res
}

func (e *Executor) dispatch(ctx context.Context, sig *models.EventSignal, mode models.TradingMode, callback TradeCallback) models.ExecutionResult {
	switch mode {
	case models.ModeSignalOnly:
		return models.ExecutionResult{Status: models.StatusLogged, Message: "signal logged, not executed"}

	case models.ModeStraddle:
		return models.ExecutionResult{Status: models.StatusNotImplemented, Message: "straddle: " + apperrors.ErrNotImplemented.Error()}

	case models.ModeDirectional:
		if sig.Executed {
			return models.ExecutionResult{Status: models.StatusSkipped, Executed: true, Ticket: sig.ExecutionID,
				Message: "signal already executed"}
		}
		if callback == nil {
			return models.ExecutionResult{Status: models.StatusSkipped, Message: apperrors.ErrNoCallback.Error()}
		}
		if sig.Direction == models.DirectionHold {
			return models.ExecutionResult{Status: models.StatusSkipped, Message: "HOLD signal, nothing to place"}
		}
		if res, ok := e.riskGate(ctx, sig); !ok {
			return res
		}
		return e.place(ctx, sig, callback)

	default:
		return models.ExecutionResult{Status: models.StatusFailed, Message: fmt.Sprintf("unknown trading mode %q", mode)}
	}
}

func (e *Executor) recordAudit(ctx context.Context, sig *models.EventSignal, res models.ExecutionResult) {
	if e.audit == nil || res.Mode != models.ModeDirectional {
		return
	}
	switch res.Status {
	case models.StatusExecuted, models.StatusBlocked, models.StatusFailed:
	default:
		return
	}
	if err := e.audit.RecordDispatch(ctx, *sig, res); err != nil {
		e.logger.Warn().Err(err).Str("signal_id", sig.ID).Msg("Failed to write audit entry")
	}
}

// riskGate consults the guardian. ok is false when dispatch must stop.
func (e *Executor) riskGate(ctx context.Context, sig *models.EventSignal) (models.ExecutionResult, bool) {
	if e.guardian == nil || e.account == nil {
		return models.ExecutionResult{}, true
	}

	equity, err := e.account.GetAccountEquity(ctx)
	if err != nil {
		e.metrics.RecordCollaboratorError("market_data", "get_account_equity")
		return models.ExecutionResult{Status: models.StatusFailed,
			Message: fmt.Sprintf("risk check unavailable: %v", err)}, false
	}
	positions, err := e.account.OpenPositions(ctx)
	if err != nil {
		e.metrics.RecordCollaboratorError("order_execution", "open_positions")
		return models.ExecutionResult{Status: models.StatusFailed,
			Message: fmt.Sprintf("risk check unavailable: %v", err)}, false
	}

	verdict := e.guardian.CheckTradeSafety(ctx, agents.TradeCheck{
		Principal:      e.principal,
		Symbol:         sig.Symbol,
		SymbolExposure: broker.ExposureBySymbol(positions)[sig.Symbol],
		Equity:         equity,
		OpenPositions:  positions,
	})
	if !verdict.Safe {
		return models.ExecutionResult{Status: models.StatusBlocked, Message: verdict.Reason}, false
	}
	return models.ExecutionResult{}, true
}

func (e *Executor) place(ctx context.Context, sig *models.EventSignal, callback TradeCallback) models.ExecutionResult {
	req := models.OrderRequest{
		Symbol:         sig.Symbol,
		Direction:      sig.Direction,
		Volume:         sig.Volume,
		StopLossPips:   sig.StopLossPips,
		TakeProfitPips: sig.TakeProfitPips,
		OrderType:      sig.OrderType,
		Comment:        sig.ID,
	}
	if sig.OrderType == models.OrderTypeLimitPullback {
		req.LimitPrice = sig.PriceHint
	}

	fill, err := callback(ctx, req)
	if err != nil {
		e.metrics.RecordCollaboratorError("order_execution", "place_order")
		return models.ExecutionResult{Status: models.StatusFailed, Message: fmt.Sprintf("order failed: %v", err)}
	}
	if fill == nil {
		return models.ExecutionResult{Status: models.StatusFailed, Message: "order callback returned no fill"}
	}

	sig.MarkExecuted(fill.Ticket)
	if e.journal != nil {
		if err := e.journal.MarkSignalExecuted(ctx, sig.ID, fill.Ticket); err != nil {
			e.logger.Warn().Err(err).Str("signal_id", sig.ID).Msg("Failed to journal execution")
		}
	}
	return models.ExecutionResult{
		Status:    models.StatusExecuted,
		Executed:  true,
		Ticket:    fill.Ticket,
		FillPrice: fill.FillPrice,
		Message:   fmt.Sprintf("%s %.2f %s filled at %.5f", sig.Direction, sig.Volume, sig.Symbol, fill.FillPrice),
	}
}
