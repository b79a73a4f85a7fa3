package agents

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macro-trader/internal/config"
	"macro-trader/internal/logging"
	"macro-trader/internal/metrics"
	"macro-trader/internal/models"
)

// Rules reported when a trade is blocked.
const (
	RuleDailyLoss   = "daily_loss"
	RuleExposure    = "symbol_exposure"
	RuleCorrelation = "correlation"
)

// TradeCheck carries the inputs of a safety check.
type TradeCheck struct {
	Principal      string
	Symbol         string
	SymbolExposure float64 // lots already open on Symbol
	Equity         float64
	OpenPositions  []models.OpenPosition
}

// SafetyVerdict is the outcome of CheckTradeSafety.
type SafetyVerdict struct {
	Safe       bool             `json:"safe"`
	Rule       string           `json:"rule,omitempty"`
	Reason     string           `json:"reason"`
	Correlated []CorrelationHit `json:"correlated,omitempty"`
}

type principalState struct {
	mu    sync.Mutex
	state models.DailyRiskState
}

// Guardian gates and sizes trades. It never originates a trade idea.
type Guardian struct {
	cfg         config.RiskConfig
	correlation *CorrelationChecker
	metrics     *metrics.Recorder
	logger      zerolog.Logger
	now         func() time.Time

	mu         sync.Mutex
	principals map[string]*principalState
}

// NewGuardian creates a guardian. correlation may be nil, in which case the
// correlation rule is skipped.
func NewGuardian(cfg config.RiskConfig, correlation *CorrelationChecker, logger zerolog.Logger) *Guardian {
	if cfg.DailyLossLimit <= 0 {
		cfg.DailyLossLimit = 0.05
	}
	if cfg.MaxSymbolExposure <= 0 {
		cfg.MaxSymbolExposure = 2.0
	}
	if cfg.MaxCorrelation <= 0 {
		cfg.MaxCorrelation = 0.8
	}
	return &Guardian{
		cfg:         cfg,
		correlation: correlation,
		logger:      logger.With().Str("component", "guardian").Logger(),
		now:         time.Now,
		principals:  make(map[string]*principalState),
	}
}

// SetMetrics attaches a metrics recorder.
func (g *Guardian) SetMetrics(m *metrics.Recorder) {
	g.metrics = m
}

// SetClock overrides the time source. Used by tests.
func (g *Guardian) SetClock(now func() time.Time) {
	g.now = now
}

// Config returns the active thresholds.
func (g *Guardian) Config() config.RiskConfig {
	return g.cfg
}

func (g *Guardian) principal(name string) *principalState {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps, ok := g.principals[name]
	if !ok {
		ps = &principalState{}
		g.principals[name] = ps
	}
	return ps
}

// resetLocked applies the UTC day rollover. ps.mu must be held.
func (g *Guardian) resetLocked(ps *principalState, equity float64) {
	today := g.now().UTC().Truncate(24 * time.Hour)
	if ps.state.ResetDate.Equal(today) {
		return
	}
	ps.state = models.DailyRiskState{
		StartOfDayEquity: equity,
		RealizedPnL:      0,
		ResetDate:        today,
	}
}

// DailyResetCheck zeroes the principal's realized P&L and snapshots equity
// on the first access of a UTC day. Repeated calls on the same day are no-ops.
func (g *Guardian) DailyResetCheck(principal string, equity float64) models.DailyRiskState {
	ps := g.principal(principal)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	g.resetLocked(ps, equity)
	return ps.state
}

// RecordPnL adds realized profit or loss for the principal's current day.
func (g *Guardian) RecordPnL(principal string, pnl, equity float64) models.DailyRiskState {
	ps := g.principal(principal)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	g.resetLocked(ps, equity)
	ps.state.RealizedPnL += pnl
	return ps.state
}

// CheckTradeSafety blocks a trade when the daily loss limit is reached, the
// symbol is at its exposure cap, or an open position is too correlated with
// the symbol. Blocking is a verdict, not an error.
func (g *Guardian) CheckTradeSafety(ctx context.Context, tc TradeCheck) SafetyVerdict {
	state := g.DailyResetCheck(tc.Principal, tc.Equity)

	if loss := -state.RealizedPnL; loss > 0 && loss >= g.cfg.DailyLossLimit*tc.Equity {
		return g.block(tc, RuleDailyLoss, fmt.Sprintf("daily loss %.2f reached %.1f%% of equity %.2f",
			loss, g.cfg.DailyLossLimit*100, tc.Equity), nil)
	}

	if tc.SymbolExposure >= g.cfg.MaxSymbolExposure {
		return g.block(tc, RuleExposure, fmt.Sprintf("exposure on %s is %.2f lots, cap %.2f",
			tc.Symbol, tc.SymbolExposure, g.cfg.MaxSymbolExposure), nil)
	}

	if g.correlation != nil && len(tc.OpenPositions) > 0 {
		hits := g.correlation.Check(ctx, tc.Symbol, tc.OpenPositions, g.cfg.MaxCorrelation)
		var blocking []CorrelationHit
		for _, h := range hits {
			if absf(h.Correlation) > g.cfg.MaxCorrelation {
				blocking = append(blocking, h)
			}
		}
		if len(blocking) > 0 {
			return g.block(tc, RuleCorrelation, fmt.Sprintf("%s correlated with open %s",
				tc.Symbol, joinHits(blocking)), blocking)
		}
	}

	return SafetyVerdict{Safe: true, Reason: "all risk checks passed"}
}

func (g *Guardian) block(tc TradeCheck, rule, reason string, hits []CorrelationHit) SafetyVerdict {
	g.metrics.RecordRiskBlock(rule)
	logging.LogRiskBlock(g.logger, tc.Principal, tc.Symbol, reason)
	return SafetyVerdict{Safe: false, Rule: rule, Reason: reason, Correlated: hits}
}

// CalculateLots sizes a position so that hitting the stop loses the
// confidence-scaled share of equity. Risk is dampened while the principal is
// losing on the day.
func (g *Guardian) CalculateLots(equity float64, symbol string, stopLossPips float64, confidence models.Confidence, principal string) float64 {
	ps := g.principal(principal)
	ps.mu.Lock()
	g.resetLocked(ps, equity)
	realized := ps.state.RealizedPnL
	ps.mu.Unlock()

	fraction := dampenedFraction(RiskFraction(confidence), realized, equity, g.cfg.DailyLossLimit)
	return lotsFor(equity, fraction, PipValuePerLot(symbol), stopLossPips)
}

// RiskReport summarises the principal's state. It never blocks.
func (g *Guardian) RiskReport(ctx context.Context, tc TradeCheck) models.RiskReport {
	state := g.DailyResetCheck(tc.Principal, tc.Equity)

	var exposure float64
	for _, p := range tc.OpenPositions {
		exposure += p.Volume
	}

	report := models.RiskReport{
		Principal:         tc.Principal,
		DailyPnL:          state.RealizedPnL,
		TotalExposure:     exposure,
		Equity:            tc.Equity,
		StartOfDayEquity:  state.StartOfDayEquity,
		DailyLossLimit:    g.cfg.DailyLossLimit,
		MaxSymbolExposure: g.cfg.MaxSymbolExposure,
		MaxCorrelation:    g.cfg.MaxCorrelation,
		CircuitBreaker:    -state.RealizedPnL > 0 && -state.RealizedPnL >= g.cfg.DailyLossLimit*tc.Equity,
		GeneratedAt:       g.now(),
	}
	if state.StartOfDayEquity > 0 {
		report.DailyPnLPct = state.RealizedPnL / state.StartOfDayEquity * 100
	}

	if g.correlation != nil && tc.Symbol != "" && len(tc.OpenPositions) > 0 {
		if hits := g.correlation.Check(ctx, tc.Symbol, tc.OpenPositions, g.cfg.MaxCorrelation); len(hits) > 0 {
			report.CorrelationWarning = fmt.Sprintf("%s moves with open %s", tc.Symbol, joinHits(hits))
		}
	}
	return report
}

func joinHits(hits []CorrelationHit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.String()
	}
	return strings.Join(parts, ", ")
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
