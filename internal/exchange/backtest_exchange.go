package exchange

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"

	"hedged-grid-backtest/internal/models"
)

// BacktestExchange 模拟交易所的限价单撮合，用于回测。
// It is driven by one goroutine: CrossBar delivers fills to the trade handler,
// which may place and cancel orders re-entrantly.
type BacktestExchange struct {
	symbol      string
	orders      map[string]*models.Order
	nextSeq     uint64
	nextTradeID uint64
	currentTime time.Time
	fills       int

	handler  TradeHandler
	observer Observer
	logger   *zap.Logger
}

// NewBacktestExchange 创建一个新的 BacktestExchange 实例。
func NewBacktestExchange(symbol string, logger *zap.Logger) *BacktestExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestExchange{
		symbol:  symbol,
		orders:  make(map[string]*models.Order),
		nextSeq: 1,
		logger:  logger,
	}
}

// SetTradeHandler registers the receiver of fills.
func (e *BacktestExchange) SetTradeHandler(h TradeHandler) { e.handler = h }

// SetObserver registers an order-flow observer.
func (e *BacktestExchange) SetObserver(o Observer) { e.observer = o }

// Place 挂出一个限价单
func (e *BacktestExchange) Place(side models.Side, price, volume float64) []string {
	if price <= 0 || volume <= 0 {
		e.logger.Sugar().Warnf("rejecting %s order: price=%.8f volume=%.8f", side, price, volume)
		return nil
	}

	seq := e.nextSeq
	e.nextSeq++
	order := &models.Order{
		ID:        orderID(seq),
		Seq:       seq,
		Symbol:    e.symbol,
		Side:      side,
		Price:     price,
		Volume:    volume,
		Status:    models.OrderNew,
		CreatedAt: e.currentTime,
	}
	e.orders[order.ID] = order

	if e.observer != nil {
		e.observer.OrderPlaced(side)
	}
	return []string{order.ID}
}

// Cancel 撤销订单，对不存在或已成交的订单无操作
func (e *BacktestExchange) Cancel(id string) {
	order, ok := e.orders[id]
	if !ok {
		return
	}
	order.Status = models.OrderCancelled
	delete(e.orders, id)

	if e.observer != nil {
		e.observer.OrderCancelled()
	}
}

// CrossBar matches every order resting at the start of the bar against its
// range. Orders placed while fills are handled wait for the next bar.
// Buy and cover orders fill when the low trades through the limit, at the
// better of limit and open; sell and short orders mirror this on the high.
func (e *BacktestExchange) CrossBar(bar models.Bar) {
	e.currentTime = bar.Time

	resting := make([]*models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		resting = append(resting, o)
	}
	sort.Slice(resting, func(i, j int) bool { return resting[i].Seq < resting[j].Seq })

	for _, order := range resting {
		// an earlier fill in this bar may have triggered a cancel
		if order.Status != models.OrderNew {
			continue
		}

		fillPrice, crossed := crossPrice(order, bar)
		if !crossed {
			continue
		}
		e.fill(order, fillPrice, bar.Time)
	}
}

func crossPrice(order *models.Order, bar models.Bar) (float64, bool) {
	if order.Side.Direction() == models.DirectionLong {
		if order.Price >= bar.Low {
			return min(order.Price, bar.Open), true
		}
		return 0, false
	}
	if order.Price <= bar.High {
		return max(order.Price, bar.Open), true
	}
	return 0, false
}

func (e *BacktestExchange) fill(order *models.Order, price float64, ts time.Time) {
	order.Status = models.OrderFilled
	delete(e.orders, order.ID)
	e.fills++

	tradeID := e.nextTradeID + 1
	e.nextTradeID = tradeID

	if e.observer != nil {
		e.observer.OrderFilled(order.Side, order.Volume)
	}
	if e.handler == nil {
		return
	}
	e.handler(models.TradeEvent{
		TradeID:   orderID(tradeID),
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Price:     price,
		Volume:    order.Volume,
		Direction: order.Side.Direction(),
		Offset:    order.Side.Offset(),
		Time:      ts,
	})
}

// ActiveOrders returns resting orders in submission order.
func (e *BacktestExchange) ActiveOrders() []models.Order {
	out := make([]models.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// FillCount is the number of fills produced so far.
func (e *BacktestExchange) FillCount() int { return e.fills }

func orderID(seq uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return base62.EncodeToString(buf[:])
}
