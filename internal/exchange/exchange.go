package exchange

import "hedged-grid-backtest/internal/models"

// Gateway 定义了策略向执行层下单和撤单的接口
type Gateway interface {
	// Place submits a limit order and returns the ids it was accepted under.
	// An empty result means the order was rejected.
	Place(side models.Side, price, volume float64) []string
	// Cancel withdraws a resting order. Unknown or finished ids are ignored.
	Cancel(orderID string)
}

// TradeHandler receives fills synchronously.
type TradeHandler func(trade models.TradeEvent)

// Observer is notified of order flow, e.g. by a metrics collector.
type Observer interface {
	OrderPlaced(side models.Side)
	OrderCancelled()
	OrderFilled(side models.Side, volume float64)
}
