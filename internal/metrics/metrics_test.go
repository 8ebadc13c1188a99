package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedged-grid-backtest/internal/models"
)

func TestCollectorOrderFlow(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.OrderPlaced(models.Buy)
	c.OrderPlaced(models.Buy)
	c.OrderPlaced(models.Short)
	c.OrderCancelled()
	c.OrderFilled(models.Buy, 0.5)
	c.OrderFilled(models.Buy, 0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ordersPlaced.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ordersPlaced.WithLabelValues("SHORT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ordersCancelled))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.fills.WithLabelValues("BUY")))
	assert.Equal(t, 0.75, testutil.ToFloat64(c.filledVolume.WithLabelValues("BUY")))
}

func TestCollectorProgressAndAccount(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.BarProcessed()
	c.BarProcessed()
	c.WindowLoaded(66)
	c.ObserveAccount(models.AccountSnapshot{Equity: 9500, Drawdown: 0.05, MaxDrawdown: 0.08, Halted: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.bars))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.windows))
	assert.Equal(t, 66.0, testutil.ToFloat64(c.progress))
	assert.Equal(t, 9500.0, testutil.ToFloat64(c.equity))
	assert.Equal(t, 0.08, testutil.ToFloat64(c.drawdown.WithLabelValues("max")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.halted))
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
	assert.NotPanics(t, func() { NewCollector(nil) })
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry()) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
