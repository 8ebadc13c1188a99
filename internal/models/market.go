package models

import (
	"fmt"
	"time"
)

// Interval is a bar granularity.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval1h Interval = "1h"
	Interval1d Interval = "1d"
)

// Duration returns the length of one bar.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval1m:
		return time.Minute, nil
	case Interval1h:
		return time.Hour, nil
	case Interval1d:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown interval %q", string(i))
}

// Bar is one OHLCV candle keyed by its open time.
type Bar struct {
	Symbol   string    `json:"symbol"`
	Interval Interval  `json:"interval"`
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Side 定义了下单指令
type Side string

const (
	Buy   Side = "BUY"   // 开多
	Sell  Side = "SELL"  // 平多
	Short Side = "SHORT" // 开空
	Cover Side = "COVER" // 平空
)

// Direction is the signed direction of a fill.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Offset tells whether a fill opens or closes exposure.
type Offset string

const (
	Open  Offset = "OPEN"
	Close Offset = "CLOSE"
)

// Direction maps an order instruction to the direction of its fills.
func (s Side) Direction() Direction {
	if s == Buy || s == Cover {
		return DirectionLong
	}
	return DirectionShort
}

// Offset maps an order instruction to open/close intent.
func (s Side) Offset() Offset {
	if s == Buy || s == Short {
		return Open
	}
	return Close
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderNew       OrderStatus = "NEW"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is a resting limit order inside the simulated exchange.
type Order struct {
	ID        string      `json:"id"`
	Seq       uint64      `json:"seq"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Price     float64     `json:"price"`
	Volume    float64     `json:"volume"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// TradeEvent is one fill reported back to the strategy.
type TradeEvent struct {
	TradeID   string    `json:"trade_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Direction Direction `json:"direction"`
	Offset    Offset    `json:"offset"`
	Time      time.Time `json:"time"`
}
