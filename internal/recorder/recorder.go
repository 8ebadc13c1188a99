// Package recorder captures closed klines from the Binance websocket stream
// into the bar store.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hedged-grid-backtest/internal/models"
)

const writeWait = 10 * time.Second

// BarSink receives recorded bars, normally storage.BarStore.
type BarSink interface {
	SaveBars(ctx context.Context, bars []models.Bar) (int, error)
}

// klineEvent is the payload of a <symbol>@kline_<interval> stream.
type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime int64       `json:"t"`
		Interval string      `json:"i"`
		Open     json.Number `json:"o"`
		High     json.Number `json:"h"`
		Low      json.Number `json:"l"`
		Close    json.Number `json:"c"`
		Volume   json.Number `json:"v"`
		Closed   bool        `json:"x"` // K线是否已收盘
	} `json:"k"`
}

// KlineRecorder 订阅K线流并把已收盘的K线写入K线库
type KlineRecorder struct {
	wsBaseURL      string
	pongWait       time.Duration
	pingPeriod     time.Duration
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	sink           BarSink
	logger         *zap.SugaredLogger

	mu       sync.Mutex
	recorded int
}

func NewKlineRecorder(cfg models.RecorderConfig, sink BarSink, logger *zap.Logger) *KlineRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	pongWait := time.Duration(cfg.PongTimeoutSec) * time.Second
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	pingPeriod := time.Duration(cfg.PingIntervalSec) * time.Second
	if pingPeriod <= 0 || pingPeriod >= pongWait {
		pingPeriod = (pongWait * 9) / 10 // Must be less than pongWait
	}
	return &KlineRecorder{
		wsBaseURL:      strings.TrimRight(cfg.WSBaseURL, "/"),
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		reconnectDelay: 5 * time.Second,
		dialer:         websocket.DefaultDialer,
		sink:           sink,
		logger:         logger.Sugar(),
	}
}

// StreamURL is the raw stream endpoint for symbol and interval.
func (r *KlineRecorder) StreamURL(symbol string, interval models.Interval) string {
	return fmt.Sprintf("%s/ws/%s@kline_%s", r.wsBaseURL, strings.ToLower(symbol), interval)
}

// Recorded returns how many closed bars were saved.
func (r *KlineRecorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}

// Run records until ctx is cancelled, reconnecting after every failure.
func (r *KlineRecorder) Run(ctx context.Context, symbol string, interval models.Interval) error {
	if _, err := interval.Duration(); err != nil {
		return err
	}
	url := r.StreamURL(symbol, interval)
	for {
		conn, _, err := r.dialer.DialContext(ctx, url, nil)
		if err != nil {
			r.logger.Warnf("连接 %s 失败: %v", url, err)
		} else {
			r.logger.Infof("已连接K线流 %s", url)
			if err := r.session(ctx, conn, interval); err != nil {
				r.logger.Warnf("WebSocket处理时发生错误: %v", err)
			}
			conn.Close()
		}

		select {
		case <-ctx.Done():
			r.logger.Infof("K线录制结束, 共保存 %d 根", r.Recorded())
			return nil
		case <-time.After(r.reconnectDelay):
			r.logger.Info("WebSocket连接已断开，准备重连...")
		}
	}
}

// session 处理一个已建立的连接，并实现心跳机制
func (r *KlineRecorder) session(ctx context.Context, conn *websocket.Conn, interval models.Interval) error {
	// 设置Pong处理器来延长读取超时
	conn.SetReadDeadline(time.Now().Add(r.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(r.pongWait))
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// 任何读取错误都意味着连接已损坏
				return fmt.Errorf("读取消息失败: %w", err)
			}
			r.handleMessage(gctx, message, interval)
		}
	})

	g.Go(func() error {
		pingTicker := time.NewTicker(r.pingPeriod)
		defer pingTicker.Stop()
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return fmt.Errorf("发送Ping失败: %w", err)
				}
			case <-gctx.Done():
				// 优雅关闭, 同时让读循环退出
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return nil
			}
		}
	})

	return g.Wait()
}

func (r *KlineRecorder) handleMessage(ctx context.Context, message []byte, interval models.Interval) {
	bar, closed, err := parseKline(message, interval)
	if err != nil {
		r.logger.Warnf("解析K线信息失败: %v", err)
		return
	}
	if !closed {
		return
	}
	if _, err := r.sink.SaveBars(ctx, []models.Bar{bar}); err != nil {
		r.logger.Errorf("保存K线失败: %v", err)
		return
	}
	r.mu.Lock()
	r.recorded++
	r.mu.Unlock()
	r.logger.Debugf("已录制 %s %s close=%.4f", bar.Symbol, bar.Time.Format(time.RFC3339), bar.Close)
}

// parseKline decodes a kline event and reports whether the kline is final.
func parseKline(message []byte, interval models.Interval) (models.Bar, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return models.Bar{}, false, err
	}
	if ev.Event != "kline" {
		return models.Bar{}, false, fmt.Errorf("unexpected event %q", ev.Event)
	}
	if ev.Kline.Interval != "" && ev.Kline.Interval != string(interval) {
		return models.Bar{}, false, fmt.Errorf("interval %s, subscribed to %s", ev.Kline.Interval, interval)
	}

	var vals [5]float64
	for i, n := range []json.Number{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume} {
		v, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return models.Bar{}, false, fmt.Errorf("kline %d field %d: %w", ev.Kline.OpenTime, i+1, err)
		}
		vals[i] = v
	}
	return models.Bar{
		Symbol:   ev.Symbol,
		Interval: interval,
		Time:     time.UnixMilli(ev.Kline.OpenTime).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, ev.Kline.Closed, nil
}
