// Package bot implements the dynamic hedged rebate grid: a symmetric grid of
// resting long and short orders around a moving base price, where every
// opening fill immediately gets a take-profit one grid step away and realized
// gains compound into the order size of the side that produced them.
package bot

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"hedged-grid-backtest/internal/account"
	"hedged-grid-backtest/internal/exchange"
	"hedged-grid-backtest/internal/fee"
	"hedged-grid-backtest/internal/grid"
	"hedged-grid-backtest/internal/models"
	"hedged-grid-backtest/internal/strategy"
)

// Name is the registry name of the strategy.
const Name = models.DefaultStrategyName

// exposureOffsetFactor scales grid_pct for the price of a reducing order.
const exposureOffsetFactor = 0.5

// gridOrder locates a resting grid order in the index.
type gridOrder struct {
	dir  models.Direction
	tick grid.Tick
}

// HedgedGrid 动态对冲返佣网格策略
type HedgedGrid struct {
	cfg    models.StrategyConfig
	gw     exchange.Gateway
	acct   *account.Account
	quant  grid.Quantizer
	logger *zap.SugaredLogger

	active      []grid.Tick
	longOrders  map[grid.Tick][]string
	shortOrders map[grid.Tick][]string
	gridRefs    map[string]gridOrder
	legs        map[string]*LegRecord
	reduceIDs   map[string]struct{}

	pos     float64
	trading bool
	seeded  bool

	legsOpened    int
	legsClosed    int
	legsCancelled int
	ignoredFills  int
	totalFills    int
}

// NewHedgedGrid builds the strategy around an order gateway.
func NewHedgedGrid(cfg models.StrategyConfig, mode account.RecordMode, gw exchange.Gateway, logger *zap.Logger) (*HedgedGrid, error) {
	if gw == nil {
		return nil, errors.New("order gateway is required")
	}
	if cfg.Levels < 1 || cfg.GridPct <= 0 {
		return nil, fmt.Errorf("invalid grid: levels=%d grid_pct=%v", cfg.Levels, cfg.GridPct)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fees := fee.Model{MakerRebateRate: cfg.MakerRebateRate, TakerFeeRate: cfg.TakerFeeRate}
	return &HedgedGrid{
		cfg:         cfg,
		gw:          gw,
		acct:        account.New(account.LimitsFromConfig(cfg), fees, mode),
		quant:       grid.NewQuantizer(cfg.PriceRoundDP),
		logger:      logger.Sugar().With("strategy", Name),
		longOrders:  make(map[grid.Tick][]string),
		shortOrders: make(map[grid.Tick][]string),
		gridRefs:    make(map[string]gridOrder),
		legs:        make(map[string]*LegRecord),
		reduceIDs:   make(map[string]struct{}),
	}, nil
}

// New is the registry factory.
func New(p strategy.Params) (strategy.Strategy, error) {
	return NewHedgedGrid(p.Config, p.RecordMode, p.Gateway, p.Logger)
}

// Register adds the strategy to a registry.
func Register(r *strategy.Registry) error {
	return r.Register(Name, New)
}

func (b *HedgedGrid) Name() string { return Name }

func (b *HedgedGrid) Account() *account.Account { return b.acct }

// Position is the net filled position, long positive.
func (b *HedgedGrid) Position() float64 { return b.pos }

func (b *HedgedGrid) OnStart() {
	b.trading = true
	b.logger.Infow("strategy started",
		"grid_pct", b.cfg.GridPct,
		"levels", b.cfg.Levels,
		"maker_only", b.cfg.MakerOnlyMode,
		"initial_equity", b.cfg.InitialEquityQuote)
}

func (b *HedgedGrid) OnStop() {
	b.trading = false
	snap := b.acct.Snapshot()
	b.logger.Infow("strategy stopped",
		"equity", snap.Equity,
		"realized_pnl", snap.RealizedPnL,
		"max_drawdown", snap.MaxDrawdown,
		"halted", snap.Halted,
		"open_legs", len(b.legs))
}

// OnBar seeds the grid on the first bar; later bars only move the market.
func (b *HedgedGrid) OnBar(bar models.Bar) {
	if !b.trading || b.acct.Halted() || b.seeded {
		return
	}
	b.seeded = true
	b.acct.SetBasePrice(bar.Close)
	b.acct.InitSizes(b.cfg.LongSizeInit, b.cfg.ShortSizeInit)
	b.rebuildGrid()
}

// OnTrade routes a fill: opening fills start legs, fills of known
// take-profit orders close them, anything else only moves the position.
func (b *HedgedGrid) OnTrade(trade models.TradeEvent) {
	b.totalFills++
	if trade.Direction == models.DirectionLong {
		b.pos += trade.Volume
	} else {
		b.pos -= trade.Volume
	}

	if trade.Offset == models.Open {
		b.onOpenFill(trade)
		return
	}

	rec, ok := b.legs[trade.OrderID]
	if !ok {
		delete(b.reduceIDs, trade.OrderID)
		b.ignoredFills++
		b.logger.Debugw("fill without leg ignored", "order_id", trade.OrderID, "price", trade.Price)
		return
	}
	b.onCloseFill(trade, rec)
}

func (b *HedgedGrid) onOpenFill(trade models.TradeEvent) {
	if ref, ok := b.gridRefs[trade.OrderID]; ok {
		b.unindex(trade.OrderID, ref)
	}

	isMaker := b.cfg.AssumeMakerForRestingOrders
	openFee := b.acct.ChargeFee(trade.Price, trade.Volume, isMaker)

	tpSide := models.Sell
	tpPrice := b.quant.Round(trade.Price * (1 + b.cfg.GridPct))
	if trade.Direction == models.DirectionShort {
		tpSide = models.Cover
		tpPrice = b.quant.Round(trade.Price * (1 - b.cfg.GridPct))
	}

	b.legsOpened++
	ids := b.gw.Place(tpSide, tpPrice, trade.Volume)
	if len(ids) == 0 {
		b.logger.Warnw("take profit rejected, leg left untracked",
			"direction", trade.Direction, "entry", trade.Price, "tp", tpPrice)
	} else {
		b.legs[ids[0]] = &LegRecord{
			Direction:  trade.Direction,
			EntryPrice: trade.Price,
			Volume:     trade.Volume,
			TradeIDs:   []string{trade.TradeID},
			OpenTime:   trade.Time,
			OpenFee:    openFee,
			OpenMaker:  isMaker,
			State:      LegOpenFilled,
		}
	}

	b.acct.SetBasePrice(trade.Price)
	if !b.acct.Halted() {
		b.rebuildGrid()
	}
}

func (b *HedgedGrid) onCloseFill(trade models.TradeEvent, rec *LegRecord) {
	delete(b.legs, trade.OrderID)
	rec.State = LegCloseFilled
	b.legsClosed++

	closeFee := b.acct.ChargeFee(trade.Price, rec.Volume, b.cfg.AssumeMakerForRestingOrders)
	gross := max(0, rec.favorableDelta(trade.Price)) * rec.Volume
	net := gross - (rec.OpenFee + closeFee)

	b.acct.Realize(models.ClosedLeg{
		Direction:  rec.Direction,
		EntryPrice: rec.EntryPrice,
		ExitPrice:  trade.Price,
		Volume:     rec.Volume,
		OpenFee:    rec.OpenFee,
		CloseFee:   closeFee,
		GrossPnL:   gross,
		NetPnL:     net,
		OpenTime:   rec.OpenTime,
		CloseTime:  trade.Time,
	})

	b.controlExposure(trade.Price)
	if b.acct.CheckDrawdown() {
		b.halt(trade.Time)
	}
}

// controlExposure sends one reducing order when the net position is over
// the limit. It does not loop.
func (b *HedgedGrid) controlExposure(price float64) {
	qty, ok := b.acct.ExposureReduction(b.pos)
	if !ok {
		return
	}

	offset := b.cfg.GridPct * exposureOffsetFactor
	side, at := models.Sell, b.quant.Round(price*(1+offset))
	if b.pos < 0 {
		side, at = models.Cover, b.quant.Round(price*(1-offset))
	}
	for _, id := range b.gw.Place(side, at, qty) {
		b.reduceIDs[id] = struct{}{}
	}
	b.logger.Infow("net exposure reduced", "position", b.pos, "side", side, "price", at, "qty", qty)
}

// rebuildGrid recentres the ladder on the base price, touching only the
// levels that changed.
func (b *HedgedGrid) rebuildGrid() {
	if b.acct.Halted() {
		return
	}
	next := grid.Levels(b.acct.BasePrice(), b.cfg.GridPct, b.cfg.Levels, b.quant)
	toCancel, toPlace := grid.Diff(b.active, next)

	for _, t := range toCancel {
		b.cancelLevel(t)
	}
	for _, t := range toPlace {
		b.placeLevel(t)
	}
	b.active = next

	b.logger.Debugw("grid rebuilt",
		"base", b.acct.BasePrice(), "cancelled", len(toCancel), "placed", len(toPlace))
}

// placeLevel puts the long and/or short order for one level. In maker-only
// mode longs rest strictly below base and shorts strictly above.
func (b *HedgedGrid) placeLevel(t grid.Tick) {
	price := b.quant.Price(t)
	base := b.acct.BasePrice()

	if !b.cfg.MakerOnlyMode || price < base {
		ids := b.gw.Place(models.Buy, price, b.acct.OrderSize(models.DirectionLong))
		b.index(models.DirectionLong, t, ids)
	}
	if !b.cfg.MakerOnlyMode || price > base {
		ids := b.gw.Place(models.Short, price, b.acct.OrderSize(models.DirectionShort))
		b.index(models.DirectionShort, t, ids)
	}
}

func (b *HedgedGrid) cancelLevel(t grid.Tick) {
	for _, book := range []map[grid.Tick][]string{b.longOrders, b.shortOrders} {
		for _, id := range book[t] {
			b.gw.Cancel(id)
			delete(b.gridRefs, id)
			b.legsCancelled++
		}
		delete(book, t)
	}
}

func (b *HedgedGrid) book(dir models.Direction) map[grid.Tick][]string {
	if dir == models.DirectionLong {
		return b.longOrders
	}
	return b.shortOrders
}

func (b *HedgedGrid) index(dir models.Direction, t grid.Tick, ids []string) {
	if len(ids) == 0 {
		return
	}
	book := b.book(dir)
	book[t] = append(book[t], ids...)
	for _, id := range ids {
		b.gridRefs[id] = gridOrder{dir: dir, tick: t}
	}
}

func (b *HedgedGrid) unindex(id string, ref gridOrder) {
	delete(b.gridRefs, id)
	book := b.book(ref.dir)
	ids := book[ref.tick]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(book, ref.tick)
		return
	}
	book[ref.tick] = ids
}

// halt cancels every order the strategy still has working: grid orders,
// take-profits and reducing orders.
func (b *HedgedGrid) halt(ts time.Time) {
	snap := b.acct.Snapshot()
	b.logger.Warnw("drawdown limit reached, trading halted",
		"time", ts,
		"equity", snap.Equity,
		"drawdown", snap.Drawdown,
		"limit", b.cfg.MaxAccountDrawdownPercent)

	for _, t := range b.active {
		b.cancelLevel(t)
	}
	b.active = nil

	for _, id := range sortedKeys(b.legs) {
		b.gw.Cancel(id)
		b.legs[id].State = LegCancelled
		delete(b.legs, id)
		b.legsCancelled++
	}
	for _, id := range sortedKeys(b.reduceIDs) {
		b.gw.Cancel(id)
		delete(b.reduceIDs, id)
	}
}

// LegStateOf reports where the leg behind an order id stands: a resting
// grid order is OPEN_PENDING, a resting take-profit is OPEN_FILLED.
// Finished or unknown ids report NONE.
func (b *HedgedGrid) LegStateOf(orderID string) LegState {
	if _, ok := b.gridRefs[orderID]; ok {
		return LegOpenPending
	}
	if rec, ok := b.legs[orderID]; ok {
		return rec.State
	}
	return LegNone
}

// Snapshot reports the strategy state for checkpoints and run records.
func (b *HedgedGrid) Snapshot() models.StrategySnapshot {
	resting := 0
	for _, ids := range b.longOrders {
		resting += len(ids)
	}
	for _, ids := range b.shortOrders {
		resting += len(ids)
	}
	return models.StrategySnapshot{
		Name:          Name,
		Account:       b.acct.Snapshot(),
		Position:      b.pos,
		ActiveLevels:  len(b.active),
		RestingGrid:   resting,
		OpenLegs:      len(b.legs),
		LegsOpened:    b.legsOpened,
		LegsClosed:    b.legsClosed,
		LegsCancelled: b.legsCancelled,
		IgnoredFills:  b.ignoredFills,
		TotalFills:    b.totalFills,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
