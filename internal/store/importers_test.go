package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventsCSV(t *testing.T) {
	in := `name,currency,time,impact,forecast,previous,actual
Non-Farm Payrolls,usd,2024-03-08 13:30,high,200,229,275
CPI y/y,GBP,2024-03-20T07:00:00Z,HIGH,3.5,4.0,
`
	events, err := ReadEventsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 2)

	nfp := events[0]
	assert.Equal(t, "Non-Farm Payrolls", nfp.Name)
	assert.Equal(t, "USD", nfp.Currency)
	assert.Equal(t, time.Date(2024, 3, 8, 13, 30, 0, 0, time.UTC), nfp.Time)
	assert.Equal(t, "HIGH", string(nfp.Impact))
	require.NotNil(t, nfp.Actual)
	assert.Equal(t, 275.0, *nfp.Actual)

	cpi := events[1]
	assert.Nil(t, cpi.Actual)
	require.NotNil(t, cpi.Forecast)
	assert.Equal(t, 3.5, *cpi.Forecast)
	assert.Equal(t, "CPI y/y|2024-03-20|07:00|GBP", cpi.Key())
}

func TestReadEventsCSVReportsLine(t *testing.T) {
	in := `name,currency,time,impact,forecast,previous,actual
Non-Farm Payrolls,USD,2024-03-08 13:30,HIGH,200,229,275
Non-Farm Payrolls,USD,2024-04-05 13:30,HIGH,abc,275,
`
	_, err := ReadEventsCSV(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "forecast")
}

func TestReadEventsJSON(t *testing.T) {
	in := `[{"name":"Unemployment Rate","currency":"usd","time":"2024-03-08T08:30:00-05:00","forecast":3.7,"previous":3.7}]`
	events, err := ReadEventsJSON(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "USD", events[0].Currency)
	assert.Equal(t, time.UTC, events[0].Time.Location())
	assert.Equal(t, 13, events[0].Time.Hour())
	assert.Nil(t, events[0].Actual)
}

func TestReadCandlesCSVSortsAscending(t *testing.T) {
	in := `time,open,high,low,close,volume
2024-03-08 14:00,150.10,150.40,149.90,150.30,1200
2024-03-08 13:00,149.80,150.20,149.70,150.10,900
`
	candles, err := ReadCandlesCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Time.Before(candles[1].Time))
	assert.Equal(t, 150.10, candles[0].Close)
	assert.Equal(t, int64(1200), candles[1].Volume)
}

func TestReadCandlesCSVRejectsInvertedBar(t *testing.T) {
	in := `time,open,high,low,close,volume
2024-03-08 13:00,1.0850,1.0840,1.0860,1.0855,10
`
	_, err := ReadCandlesCSV(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below low")
}

func TestParseImportTime(t *testing.T) {
	_, err := ParseImportTime("next friday")
	assert.Error(t, err)

	got, err := ParseImportTime(" 2024-03-08 13:30:00 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 8, 13, 30, 0, 0, time.UTC), got)
}
