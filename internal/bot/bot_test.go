package bot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hedged-grid-backtest/internal/account"
	"hedged-grid-backtest/internal/models"
	"hedged-grid-backtest/internal/strategy"
)

type placedOrder struct {
	ID     string
	Side   models.Side
	Price  float64
	Volume float64
}

// fakeGateway records orders instead of matching them.
type fakeGateway struct {
	next      int
	placed    []placedOrder
	cancelled []string
	reject    bool
}

func (g *fakeGateway) Place(side models.Side, price, volume float64) []string {
	if g.reject {
		return nil
	}
	g.next++
	id := fmt.Sprintf("o%d", g.next)
	g.placed = append(g.placed, placedOrder{ID: id, Side: side, Price: price, Volume: volume})
	return []string{id}
}

func (g *fakeGateway) Cancel(id string) {
	g.cancelled = append(g.cancelled, id)
}

func (g *fakeGateway) find(t *testing.T, side models.Side, price float64) placedOrder {
	t.Helper()
	for i := len(g.placed) - 1; i >= 0; i-- {
		if g.placed[i].Side == side && g.placed[i].Price == price {
			return g.placed[i]
		}
	}
	t.Fatalf("no %s order at %v in %+v", side, price, g.placed)
	return placedOrder{}
}

func (g *fakeGateway) last() placedOrder {
	return g.placed[len(g.placed)-1]
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() models.StrategyConfig {
	return models.StrategyConfig{
		GridPct:                     0.01,
		Levels:                      2,
		LongSizeInit:                1,
		ShortSizeInit:               1,
		MinOrderSize:                0.005,
		MaxIndividualPositionSize:   2,
		MaxNetExposureLimit:         5,
		MaxAccountDrawdownPercent:   0.5,
		MakerRebateRate:             0.00005,
		TakerFeeRate:                0.0007,
		AssumeMakerForRestingOrders: true,
		InitialEquityQuote:          10000,
		PriceRoundDP:                2,
		MakerOnlyMode:               true,
	}
}

func newTestBot(t *testing.T, cfg models.StrategyConfig) (*HedgedGrid, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{}
	b, err := NewHedgedGrid(cfg, account.RecordFull, gw, zap.NewNop())
	require.NoError(t, err)
	b.OnStart()
	return b, gw
}

func openFill(o placedOrder, price float64) models.TradeEvent {
	return models.TradeEvent{
		TradeID:   "t-" + o.ID,
		OrderID:   o.ID,
		Price:     price,
		Volume:    o.Volume,
		Direction: o.Side.Direction(),
		Offset:    models.Open,
		Time:      t0.Add(time.Minute),
	}
}

func closeFill(o placedOrder, price float64) models.TradeEvent {
	return models.TradeEvent{
		TradeID:   "t-" + o.ID,
		OrderID:   o.ID,
		Price:     price,
		Volume:    o.Volume,
		Direction: o.Side.Direction(),
		Offset:    models.Close,
		Time:      t0.Add(2 * time.Minute),
	}
}

func TestNewHedgedGridValidates(t *testing.T) {
	_, err := NewHedgedGrid(testConfig(), account.RecordFull, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Levels = 0
	_, err = NewHedgedGrid(cfg, account.RecordFull, &fakeGateway{}, nil)
	assert.Error(t, err)
}

func TestFirstBarSeedsMakerOnlyGrid(t *testing.T) {
	b, gw := newTestBot(t, testConfig())
	b.OnBar(models.Bar{Time: t0, Close: 1000})

	require.Len(t, gw.placed, 4)
	assert.Equal(t, placedOrder{"o1", models.Buy, 980, 1}, gw.placed[0])
	assert.Equal(t, placedOrder{"o2", models.Buy, 990, 1}, gw.placed[1])
	assert.Equal(t, placedOrder{"o3", models.Short, 1010, 1}, gw.placed[2])
	assert.Equal(t, placedOrder{"o4", models.Short, 1020, 1}, gw.placed[3])
	assert.Equal(t, 1000.0, b.Account().BasePrice())
	assert.Equal(t, LegOpenPending, b.LegStateOf("o1"))

	// later bars do not touch the grid
	b.OnBar(models.Bar{Time: t0.Add(time.Minute), Close: 1200})
	assert.Len(t, gw.placed, 4)
	assert.Empty(t, gw.cancelled)
}

func TestBarIgnoredBeforeStart(t *testing.T) {
	gw := &fakeGateway{}
	b, err := NewHedgedGrid(testConfig(), account.RecordFull, gw, nil)
	require.NoError(t, err)
	b.OnBar(models.Bar{Time: t0, Close: 1000})
	assert.Empty(t, gw.placed)
}

func TestBothSidesWithoutMakerOnly(t *testing.T) {
	cfg := testConfig()
	cfg.MakerOnlyMode = false
	b, gw := newTestBot(t, cfg)
	b.OnBar(models.Bar{Time: t0, Close: 1000})

	assert.Len(t, gw.placed, 8)
	assert.Equal(t, 4, b.Snapshot().ActiveLevels)
	assert.Equal(t, 8, b.Snapshot().RestingGrid)
}

func TestOpeningFillPlacesTakeProfitAndRecentres(t *testing.T) {
	b, gw := newTestBot(t, testConfig())
	b.OnBar(models.Bar{Time: t0, Close: 1000})
	buy990 := gw.find(t, models.Buy, 990)

	b.OnTrade(openFill(buy990, 990))

	tp := gw.find(t, models.Sell, 999.9)
	assert.Equal(t, "o5", tp.ID)
	assert.Equal(t, 1.0, tp.Volume)

	rec, ok := b.legs[tp.ID]
	require.True(t, ok)
	assert.Equal(t, models.DirectionLong, rec.Direction)
	assert.Equal(t, 990.0, rec.EntryPrice)
	assert.InDelta(t, -0.0495, rec.OpenFee, 1e-12)
	assert.True(t, rec.OpenMaker)
	assert.Equal(t, LegOpenFilled, b.LegStateOf(tp.ID))
	assert.Equal(t, LegNone, b.LegStateOf(buy990.ID))

	snap := b.Account().Snapshot()
	assert.InDelta(t, 0.0495, snap.FeeRebateQuote, 1e-12)
	assert.Equal(t, 1, snap.MakerFills)
	assert.Equal(t, 990.0, snap.BasePrice)
	assert.Equal(t, 1.0, b.Position())

	// old ladder {980,990,1010,1020} -> new ladder {970.2,980.1,999.9,1009.8};
	// the filled 990 order is no longer indexed so it is not cancelled
	assert.Equal(t, []string{"o1", "o3", "o4"}, gw.cancelled)
	assert.Equal(t, placedOrder{"o6", models.Buy, 970.2, 1}, gw.placed[5])
	assert.Equal(t, placedOrder{"o7", models.Buy, 980.1, 1}, gw.placed[6])
	assert.Equal(t, placedOrder{"o8", models.Short, 999.9, 1}, gw.placed[7])
	assert.Equal(t, placedOrder{"o9", models.Short, 1009.8, 1}, gw.placed[8])
}

func TestTakeProfitCloseRealizesAndCompounds(t *testing.T) {
	b, gw := newTestBot(t, testConfig())
	b.OnBar(models.Bar{Time: t0, Close: 1000})
	b.OnTrade(openFill(gw.find(t, models.Buy, 990), 990))
	tp := gw.find(t, models.Sell, 999.9)

	b.OnTrade(closeFill(tp, 999.9))

	net := 9.9 + 0.0495 + 0.049995
	snap := b.Account().Snapshot()
	assert.InDelta(t, net, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 10000+net, snap.Equity, 1e-9)
	assert.Equal(t, snap.InitialEquity+snap.RealizedPnL, snap.Equity)
	assert.InDelta(t, 1+net/999.9, snap.LongSize, 1e-12)
	assert.Equal(t, 1.0, snap.ShortSize)
	assert.Equal(t, 1, snap.WinningLegs)
	assert.Zero(t, b.Position())
	assert.Empty(t, b.legs)

	legs := b.Account().ClosedLegs()
	require.Len(t, legs, 1)
	assert.InDelta(t, 9.9, legs[0].GrossPnL, 1e-9)
	assert.InDelta(t, -0.049995, legs[0].CloseFee, 1e-12)

	s := b.Snapshot()
	assert.Equal(t, 1, s.LegsOpened)
	assert.Equal(t, 1, s.LegsClosed)
	assert.Equal(t, 2, s.TotalFills)
}

func TestShortLegRoundTrip(t *testing.T) {
	b, gw := newTestBot(t, testConfig())
	b.OnBar(models.Bar{Time: t0, Close: 1000})

	b.OnTrade(openFill(gw.find(t, models.Short, 1010), 1010))
	assert.Equal(t, -1.0, b.Position())
	tp := gw.find(t, models.Cover, 999.9)

	b.OnTrade(closeFill(tp, 999.9))

	snap := b.Account().Snapshot()
	gross := 1010 - 999.9
	assert.InDelta(t, gross+0.0505+0.049995, snap.RealizedPnL, 1e-9)
	assert.Greater(t, snap.ShortSize, 1.0)
	assert.Equal(t, 1.0, snap.LongSize)
	assert.Zero(t, b.Position())
}

func TestLosingCloseClampsGrossToZero(t *testing.T) {
	cfg := testConfig()
	cfg.AssumeMakerForRestingOrders = false
	b, gw := newTestBot(t, cfg)
	b.OnBar(models.Bar{Time: t0, Close: 1000})
	b.OnTrade(openFill(gw.find(t, models.Buy, 990), 990))
	tp := gw.find(t, models.Sell, 999.9)

	// reported below entry: the favourable delta is negative
	b.OnTrade(closeFill(tp, 980))

	legs := b.Account().ClosedLegs()
	require.Len(t, legs, 1)
	assert.Zero(t, legs[0].GrossPnL)
	assert.InDelta(t, -(990*0.0007 + 980*0.0007), legs[0].NetPnL, 1e-9)
	assert.Equal(t, 1, b.Account().Snapshot().LosingLegs)
}

func TestUnknownCloseFillIgnored(t *testing.T) {
	b, gw := newTestBot(t, testConfig())
	b.OnBar(models.Bar{Time: t0, Close: 1000})
	before := b.Account().Snapshot()

	b.OnTrade(models.TradeEvent{OrderID: "nope", Price: 1000, Volume: 0.3, Direction: models.DirectionShort, Offset: models.Close})

	assert.Equal(t, before, b.Account().Snapshot())
	assert.Equal(t, 1, b.Snapshot().IgnoredFills)
	assert.InDelta(t, -0.3, b.Position(), 1e-12)
	assert.Len(t, gw.placed, 4)
}

func TestExposureControlAfterClose(t *testing.T) {
	cfg := testConfig()
	cfg.MaxNetExposureLimit = 0.5
	b, gw := newTestBot(t, cfg)
	b.OnBar(models.Bar{Time: t0, Close: 1000})

	b.OnTrade(openFill(gw.find(t, models.Buy, 990), 990))
	firstTP := gw.find(t, models.Sell, 999.9)
	b.OnTrade(openFill(gw.find(t, models.Buy, 980.1), 980.1))
	require.Equal(t, 2.0, b.Position())

	b.OnTrade(closeFill(firstTP, 999.9))
	require.Equal(t, 1.0, b.Position())

	reduce := gw.last()
	assert.Equal(t, models.Sell, reduce.Side)
	assert.Equal(t, 1004.9, reduce.Price)
	assert.InDelta(t, 0.5, reduce.Volume, 1e-12)
	assert.Equal(t, LegNone, b.LegStateOf(reduce.ID))

	// the reducing fill is not a leg: it only moves the position
	b.OnTrade(closeFill(reduce, 1004.9))
	assert.InDelta(t, 0.5, b.Position(), 1e-12)
	assert.Equal(t, 1, b.Snapshot().IgnoredFills)
	assert.Equal(t, 1, b.Account().Snapshot().ClosedLegs)
}

func TestDrawdownHaltCancelsEverything(t *testing.T) {
	cfg := testConfig()
	cfg.GridPct = 0.0001
	cfg.PriceRoundDP = 4
	cfg.AssumeMakerForRestingOrders = false
	cfg.InitialEquityQuote = 2
	b, gw := newTestBot(t, cfg)
	b.OnBar(models.Bar{Time: t0, Close: 1000})

	b.OnTrade(openFill(gw.find(t, models.Buy, 999.9), 999.9))
	tp := gw.find(t, models.Sell, 1000)
	resting := b.Snapshot().RestingGrid
	require.Equal(t, 4, resting)
	cancelledBefore := len(gw.cancelled)

	b.OnTrade(closeFill(tp, 1000))

	assert.True(t, b.Account().Halted())
	assert.Equal(t, account.Halted, b.Account().State())
	assert.GreaterOrEqual(t, b.Account().MaxDrawdown(), 0.5)
	assert.Len(t, gw.cancelled, cancelledBefore+resting)
	assert.Empty(t, b.longOrders)
	assert.Empty(t, b.shortOrders)
	assert.Zero(t, b.Snapshot().ActiveLevels)

	// nothing rebuilds the grid once halted
	placed := len(gw.placed)
	b.OnBar(models.Bar{Time: t0.Add(time.Hour), Close: 900})
	assert.Len(t, gw.placed, placed)

	b.OnTrade(openFill(placedOrder{ID: "late", Side: models.Buy, Volume: 1}, 999.8))
	assert.Len(t, gw.placed, placed+1, "only the take profit is sent")
	assert.Equal(t, models.Sell, gw.last().Side)
	assert.True(t, b.Account().Halted())
}

func TestHaltCancelsOpenTakeProfits(t *testing.T) {
	cfg := testConfig()
	cfg.GridPct = 0.0001
	cfg.PriceRoundDP = 4
	cfg.AssumeMakerForRestingOrders = false
	cfg.InitialEquityQuote = 2
	b, gw := newTestBot(t, cfg)
	b.OnBar(models.Bar{Time: t0, Close: 1000})

	b.OnTrade(openFill(gw.find(t, models.Buy, 999.9), 999.9))
	firstTP := gw.find(t, models.Sell, 1000)
	b.OnTrade(openFill(gw.find(t, models.Short, 1000), 1000))
	secondTP := gw.find(t, models.Cover, 999.9)
	require.Equal(t, 2, b.Snapshot().OpenLegs)

	b.OnTrade(closeFill(firstTP, 1000))

	require.True(t, b.Account().Halted())
	assert.Contains(t, gw.cancelled, secondTP.ID)
	assert.Zero(t, b.Snapshot().OpenLegs)
	assert.Equal(t, LegNone, b.LegStateOf(secondTP.ID))
}

func TestRejectedTakeProfitLeavesNoLeg(t *testing.T) {
	b, gw := newTestBot(t, testConfig())
	b.OnBar(models.Bar{Time: t0, Close: 1000})
	buy := gw.find(t, models.Buy, 990)
	gw.reject = true

	b.OnTrade(openFill(buy, 990))

	assert.Empty(t, b.legs)
	assert.Equal(t, 1, b.Snapshot().LegsOpened)
	assert.Equal(t, 990.0, b.Account().BasePrice())
}

func TestRegistry(t *testing.T) {
	reg := strategy.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Equal(t, []string{Name}, reg.Names())

	err := Register(reg)
	assert.True(t, errors.Is(err, strategy.ErrDuplicateStrategy))

	s, err := reg.New(Name, strategy.Params{Config: testConfig(), Gateway: &fakeGateway{}})
	require.NoError(t, err)
	assert.Equal(t, Name, s.Name())
	_, ok := s.(*HedgedGrid)
	assert.True(t, ok)

	_, err = reg.New("Martingale", strategy.Params{})
	assert.True(t, errors.Is(err, strategy.ErrUnknownStrategy))
}
