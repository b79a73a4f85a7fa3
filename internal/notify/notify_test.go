package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macro-trader/internal/config"
	"macro-trader/internal/models"
)

var signalTime = time.Date(2024, 3, 8, 13, 25, 0, 0, time.UTC)

func testSignal() *models.EventSignal {
	return &models.EventSignal{
		ID:             "01HRAAAAAAAAAAAAAAAAAAAAAA",
		EventName:      "Non-Farm Payrolls",
		Currency:       "USD",
		Symbol:         "USDJPY",
		Direction:      models.DirectionBuy,
		Probability:    0.8,
		Confidence:     models.ConfidenceHigh,
		StopLossPips:   50,
		TakeProfitPips: 100,
		AvgPips:        45.5,
		TrendForecast:  "bullish, 3-day horizon",
		OrderType:      models.OrderTypeMarket,
		Volume:         0.43,
		PriceHint:      150.12,
		Reasoning:      "Expect Non-Farm Payrolls to beat",
		CreatedAt:      signalTime,
	}
}

type recordingChannel struct {
	name    string
	enabled bool
	err     error
	got     []Notification
}

func (r *recordingChannel) Name() string    { return r.name }
func (r *recordingChannel) IsEnabled() bool { return r.enabled }
func (r *recordingChannel) Send(ctx context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestNewSignalDocument(t *testing.T) {
	doc := NewSignalDocument(testSignal(), models.ExecutionResult{Status: models.StatusLogged})

	assert.Equal(t, models.DirectionBuy, doc.Direction)
	assert.Equal(t, "USDJPY", doc.Symbol)
	assert.Equal(t, 80.0, doc.ConfidencePct)
	assert.Equal(t, 45.5, doc.ForecastPips)
	assert.Equal(t, "bullish, 3-day horizon", doc.TrendBias)
	assert.Equal(t, models.StatusLogged, doc.Status)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &flat))
	for _, k := range []string{"direction", "symbol", "price_hint", "stop_loss_pips", "take_profit_pips",
		"confidence_pct", "reasoning", "timestamp", "forecast_pips", "trend_bias", "order_type", "volume"} {
		assert.Contains(t, flat, k)
	}
}

func TestMultiNotifier_LevelFilter(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	mn := NewMultiNotifier(config.NotificationConfig{Level: string(LevelErrorsOnly)}, zerolog.Nop())
	mn.AddChannel(ch)
	ctx := context.Background()

	require.NoError(t, mn.Present(ctx, NewSignalDocument(testSignal(), models.ExecutionResult{})))
	assert.Empty(t, ch.got)

	require.NoError(t, mn.SendError(ctx, errors.New("source down"), "tick"))
	require.Len(t, ch.got, 1)
	assert.Equal(t, NotificationError, ch.got[0].Type)
}

func TestMultiNotifier_FanOutContinuesPastFailure(t *testing.T) {
	bad := &recordingChannel{name: "bad", enabled: true, err: errors.New("refused")}
	good := &recordingChannel{name: "good", enabled: true}
	off := &recordingChannel{name: "off"}

	mn := NewMultiNotifier(config.NotificationConfig{}, zerolog.Nop())
	mn.AddChannel(bad)
	mn.AddChannel(good)
	mn.AddChannel(off)

	err := mn.Present(context.Background(), NewSignalDocument(testSignal(), models.ExecutionResult{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: refused")
	require.Len(t, good.got, 1)
	assert.Empty(t, off.got)
	assert.Equal(t, "BUY USDJPY on Non-Farm Payrolls", good.got[0].Title)
	assert.Equal(t, signalTime, good.got[0].Timestamp)
	assert.Equal(t, []string{"log", "bad", "good"}, mn.Channels())
}

func TestWebhookNotifier(t *testing.T) {
	var payload map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	doc := NewSignalDocument(testSignal(), models.ExecutionResult{})
	require.NoError(t, wh.Send(context.Background(), Notification{Type: NotificationSignal, Title: "t", Signal: &doc, Timestamp: signalTime}))

	var got SignalDocument
	require.NoError(t, json.Unmarshal(payload["signal"], &got))
	assert.Equal(t, "USDJPY", got.Symbol)
	assert.Equal(t, 0.43, got.Volume)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	assert.Error(t, wh.Send(context.Background(), Notification{Type: NotificationInfo}))
	assert.False(t, NewWebhookNotifier(config.WebhookConfig{Enabled: true}).IsEnabled())
}

func TestTelegramNotifier(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "TOKEN", ChatID: "42"})
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), Notification{Title: "BUY <USDJPY>", Message: "a & b"}))

	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "<b>BUY &lt;USDJPY&gt;</b>\n\na &amp; b", body["text"])
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	kn := NewKafkaNotifier(config.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}})
	fw := &fakeWriter{}
	kn.writer = fw

	mn := NewMultiNotifier(config.NotificationConfig{}, zerolog.Nop())
	mn.AddChannel(kn)
	ctx := context.Background()

	require.NoError(t, mn.Present(ctx, NewSignalDocument(testSignal(), models.ExecutionResult{})))
	require.NoError(t, mn.SendError(ctx, errors.New("x"), "y"))

	require.Len(t, fw.msgs, 1)
	assert.Equal(t, []byte("USDJPY"), fw.msgs[0].Key)
	var doc SignalDocument
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &doc))
	assert.Equal(t, "Non-Farm Payrolls", doc.EventName)

	require.NoError(t, mn.Close())
	assert.True(t, fw.closed)

	assert.False(t, NewKafkaNotifier(config.KafkaConfig{Enabled: true}).IsEnabled())
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	tn := NewTerminalNotifier(&buf, false)

	sig := testSignal()
	sig.OrderType = models.OrderTypeLimitPullback
	sig.PriceHint = 150.02
	doc := NewSignalDocument(sig, models.ExecutionResult{Status: models.StatusExecuted})
	require.NoError(t, tn.Send(context.Background(), Notification{Type: NotificationSignal, Signal: &doc, Timestamp: signalTime}))

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "[13:25:00] BUY  USDJPY | 0.43 lots | SL 50 / TP 100 | 80.0% | Non-Farm Payrolls | limit 150.02000 | EXECUTED", line)

	errLine := tn.Format(Notification{Type: NotificationError, Message: "a\nb", Timestamp: signalTime})
	assert.Equal(t, "[13:25:00] ERROR a | b", errLine)
}

func TestFormatSignal(t *testing.T) {
	text := FormatSignal(NewSignalDocument(testSignal(), models.ExecutionResult{}))
	assert.Contains(t, text, "Action: BUY 0.43 lots USDJPY (MARKET)")
	assert.Contains(t, text, "SL/TP: 50 / 100 pips")
	assert.Contains(t, text, "Confidence: 80.0%")
	assert.Contains(t, text, "Typical move: 45.5 pips")
}
