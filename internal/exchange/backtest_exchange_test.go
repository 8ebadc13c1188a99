package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hedged-grid-backtest/internal/models"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func bar(open, high, low, closePrice float64) models.Bar {
	return models.Bar{Symbol: "ETHUSDT", Time: t0, Open: open, High: high, Low: low, Close: closePrice}
}

type countingObserver struct {
	placed, cancelled, filled int
}

func (o *countingObserver) OrderPlaced(models.Side)          { o.placed++ }
func (o *countingObserver) OrderCancelled()                  { o.cancelled++ }
func (o *countingObserver) OrderFilled(models.Side, float64) { o.filled++ }

func TestPlaceAssignsUniqueIDs(t *testing.T) {
	ex := NewBacktestExchange("ETHUSDT", zap.NewNop())

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ids := ex.Place(models.Buy, 100, 1)
		require.Len(t, ids, 1)
		assert.False(t, seen[ids[0]])
		seen[ids[0]] = true
	}
	assert.Len(t, ex.ActiveOrders(), 100)
}

func TestPlaceRejectsInvalid(t *testing.T) {
	ex := NewBacktestExchange("ETHUSDT", nil)
	assert.Empty(t, ex.Place(models.Buy, 0, 1))
	assert.Empty(t, ex.Place(models.Sell, 100, 0))
	assert.Empty(t, ex.ActiveOrders())
}

func TestCrossBarFillPrices(t *testing.T) {
	tests := []struct {
		name   string
		side   models.Side
		limit  float64
		bar    models.Bar
		filled bool
		price  float64
	}{
		{"buy touched by low", models.Buy, 990, bar(1000, 1005, 985, 995), true, 990},
		{"buy gapped through", models.Buy, 990, bar(980, 995, 975, 990), true, 980},
		{"buy untouched", models.Buy, 990, bar(1000, 1005, 991, 995), false, 0},
		{"cover touched", models.Cover, 990, bar(1000, 1005, 990, 995), true, 990},
		{"sell touched by high", models.Sell, 1010, bar(1000, 1015, 995, 1005), true, 1010},
		{"sell gapped through", models.Sell, 1010, bar(1020, 1025, 1012, 1015), true, 1020},
		{"short untouched", models.Short, 1010, bar(1000, 1009, 995, 1005), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewBacktestExchange("ETHUSDT", nil)
			var trades []models.TradeEvent
			ex.SetTradeHandler(func(tr models.TradeEvent) { trades = append(trades, tr) })

			ids := ex.Place(tt.side, tt.limit, 2)
			ex.CrossBar(tt.bar)

			if !tt.filled {
				assert.Empty(t, trades)
				assert.Len(t, ex.ActiveOrders(), 1)
				return
			}
			require.Len(t, trades, 1)
			tr := trades[0]
			assert.Equal(t, ids[0], tr.OrderID)
			assert.Equal(t, tt.price, tr.Price)
			assert.Equal(t, 2.0, tr.Volume)
			assert.Equal(t, tt.side.Direction(), tr.Direction)
			assert.Equal(t, tt.side.Offset(), tr.Offset)
			assert.Equal(t, t0, tr.Time)
			assert.Empty(t, ex.ActiveOrders())
			assert.Equal(t, 1, ex.FillCount())
		})
	}
}

func TestOrdersPlacedDuringFillWaitForNextBar(t *testing.T) {
	ex := NewBacktestExchange("ETHUSDT", nil)
	var trades []models.TradeEvent
	ex.SetTradeHandler(func(tr models.TradeEvent) {
		trades = append(trades, tr)
		if tr.Offset == models.Open {
			// take profit inside the same bar's range
			ex.Place(models.Sell, 1001, tr.Volume)
		}
	})

	ex.Place(models.Buy, 990, 1)
	ex.CrossBar(bar(1000, 1010, 985, 1000))
	require.Len(t, trades, 1)
	require.Len(t, ex.ActiveOrders(), 1)

	ex.CrossBar(bar(1000, 1010, 995, 1000))
	require.Len(t, trades, 2)
	assert.Equal(t, models.Close, trades[1].Offset)
	assert.Equal(t, 1001.0, trades[1].Price)
}

func TestCancelDuringFillPreventsLaterFill(t *testing.T) {
	ex := NewBacktestExchange("ETHUSDT", nil)
	first := ex.Place(models.Buy, 995, 1)[0]
	second := ex.Place(models.Buy, 990, 1)[0]

	var filled []string
	ex.SetTradeHandler(func(tr models.TradeEvent) {
		filled = append(filled, tr.OrderID)
		ex.Cancel(second)
	})
	ex.CrossBar(bar(1000, 1000, 980, 985))

	assert.Equal(t, []string{first}, filled)
	assert.Empty(t, ex.ActiveOrders())
}

func TestCrossBarDeterministicOrder(t *testing.T) {
	ex := NewBacktestExchange("ETHUSDT", nil)
	var want []string
	for i := 0; i < 20; i++ {
		want = append(want, ex.Place(models.Buy, 1000-float64(i), 1)[0])
	}
	var got []string
	ex.SetTradeHandler(func(tr models.TradeEvent) { got = append(got, tr.OrderID) })
	ex.CrossBar(bar(1000, 1000, 900, 950))

	assert.Equal(t, want, got)
}

func TestCancelUnknownIsNoop(t *testing.T) {
	obs := &countingObserver{}
	ex := NewBacktestExchange("ETHUSDT", nil)
	ex.SetObserver(obs)

	id := ex.Place(models.Short, 1010, 1)[0]
	ex.Cancel("missing")
	ex.Cancel(id)
	ex.Cancel(id)

	assert.Equal(t, 1, obs.placed)
	assert.Equal(t, 1, obs.cancelled)
	assert.Empty(t, ex.ActiveOrders())
}

func TestObserverSeesFills(t *testing.T) {
	obs := &countingObserver{}
	ex := NewBacktestExchange("ETHUSDT", nil)
	ex.SetObserver(obs)
	ex.Place(models.Buy, 990, 1)
	ex.Place(models.Short, 1010, 1)
	ex.CrossBar(bar(1000, 1020, 980, 1000))

	assert.Equal(t, 2, obs.placed)
	assert.Equal(t, 2, obs.filled)
}
