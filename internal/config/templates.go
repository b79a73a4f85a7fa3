package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Macro Event Trader Configuration

[engine]
# Principal whose daily risk state is tracked
principal = "default"
# Symbols a due event is evaluated against
symbols = ["EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD"]
# Number of historical releases used for statistics
lookback = 50
# Timeframe used for entry technicals
entry_timeframe = "H1"
rsi_period = 14

[risk]
# Daily loss circuit breaker as a fraction of equity
daily_loss_limit = 0.05
# Maximum open lots per symbol
max_symbol_exposure = 2.0
# Block new trades correlated above this absolute Pearson value
max_correlation = 0.8
correlation_lookback = 100
min_correlation_points = 10

[cache]
stats_ttl = "1h"
correlation_ttl = "1h"

[monitor]
interval = "60s"
event_throttle = "2s"
horizon = "24h"

[trading]
# Dispatch mode: SIGNAL_ONLY, STRADDLE, DIRECTIONAL
mode = "SIGNAL_ONLY"
# Broker: "paper" or "gateway"
broker = "paper"
paper_equity = 10000.0

[gateway]
base_url = ""
api_key = ""
timeout = "10s"

[notifications]
enabled = false
# Notification level: all, signals_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notifications.kafka]
enabled = false
brokers = ["localhost:9092"]
topic = "macro-trader.signals"

[metrics]
enabled = false
addr = ":9102"

[audit]
# Append-only record of directional orders and mode changes
enabled = true

[log]
level = "info"
console = true
file = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
