package trading

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"macro-trader/internal/models"
)

// Property: For any mode, outcome and number of repeated dispatches, an order
// reaches the callback only in DIRECTIONAL mode for a non-HOLD signal, and at
// most once per signal.
func TestProperty_OrdersOnlyInDirectionalModeAndOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	modeGen := gen.OneConstOf(models.ModeSignalOnly, models.ModeStraddle, models.ModeDirectional)
	outcomeGen := gen.OneConstOf(models.OutcomeBeat, models.OutcomeMiss, models.OutcomeNeutral)
	repeatGen := gen.IntRange(1, 4)

	properties.Property("orders only in DIRECTIONAL, never twice", prop.ForAll(
		func(mode models.TradingMode, outcome models.PredictedOutcome, repeats int) bool {
			e := newTestExecutor(mode)
			cb := &recordingCallback{}
			pred := beatPrediction()
			pred.PredictedOutcome = outcome

			sig, err := e.GenerateSignal(context.Background(), pred, "USDJPY", nil, 10000)
			if err != nil {
				return false
			}
			for i := 0; i < repeats; i++ {
				e.ExecuteSignal(context.Background(), sig, cb.place)
			}

			want := 0
			if mode == models.ModeDirectional && sig.Direction != models.DirectionHold {
				want = 1
			}
			return cb.count() == want && sig.Executed == (want == 1)
		},
		modeGen,
		outcomeGen,
		repeatGen,
	))

	properties.TestingRun(t)
}

// Property: For any close and stop distance, a pullback limit sits on the
// favourable side of the close, 20% of the stop away.
func TestProperty_PullbackPriceSide(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("buy limits below close, sell limits above", prop.ForAll(
		func(close, slPips float64, sell bool) bool {
			dir := models.DirectionBuy
			if sell {
				dir = models.DirectionSell
			}
			price := pullbackPrice("EURUSD", dir, close, slPips)
			offset := slPips * pullbackShare * 0.0001
			if math.Abs(math.Abs(price-close)-offset) > 1e-9 {
				return false
			}
			if sell {
				return price > close
			}
			return price < close
		},
		gen.Float64Range(0.5, 2.0),
		gen.Float64Range(10, 100),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
