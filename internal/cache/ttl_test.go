package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestTTLCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTLCache[StatsKey, int](time.Hour, WithClock(clock.Now))

	key := StatsKey{EventName: "Non-Farm Payrolls", Currency: "USD", Weighted: true}
	c.Set(key, 42)

	v, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(59 * time.Minute)
	_, ok = c.Get(key)
	assert.True(t, ok, "still fresh before ttl")

	clock.Advance(time.Minute)
	_, ok = c.Get(key)
	assert.False(t, ok, "expired at ttl")
	assert.Equal(t, 0, c.Len(), "expired entry removed on lookup")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestTTLCacheWeightedFlagIsPartOfKey(t *testing.T) {
	c := NewTTLCache[StatsKey, string](time.Hour)
	c.Set(StatsKey{"CPI", "USD", true}, "weighted")
	c.Set(StatsKey{"CPI", "USD", false}, "raw")

	v, _ := c.Get(StatsKey{"CPI", "USD", true})
	assert.Equal(t, "weighted", v)
	v, _ = c.Get(StatsKey{"CPI", "USD", false})
	assert.Equal(t, "raw", v)
}

func TestTTLCacheDeleteFunc(t *testing.T) {
	c := NewTTLCache[StatsKey, int](time.Hour)
	c.Set(StatsKey{"CPI", "USD", true}, 1)
	c.Set(StatsKey{"CPI", "USD", false}, 2)
	c.Set(StatsKey{"CPI", "EUR", true}, 3)

	n := c.DeleteFunc(func(k StatsKey) bool { return k.Currency == "USD" })
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheConcurrentAccess(t *testing.T) {
	c := NewTTLCache[PairKey, float64](time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := NewPairKey("EURUSD", "GBPUSD")
				if j%3 == 0 {
					c.Set(k, float64(i))
				} else {
					c.Get(k)
				}
			}
		}(i)
	}
	wg.Wait()
	_, ok := c.Get(NewPairKey("GBPUSD", "EURUSD"))
	assert.True(t, ok)
}

// Property: pair keys are independent of argument order.
func TestProperty_PairKeyUnordered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	symbols := gen.OneConstOf("EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "eurgbp", "XAUUSD")

	properties.Property("NewPairKey(a,b) == NewPairKey(b,a)", prop.ForAll(
		func(a, b string) bool {
			return NewPairKey(a, b) == NewPairKey(b, a)
		},
		symbols, symbols,
	))

	properties.TestingRun(t)
}
