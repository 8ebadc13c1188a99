package downloader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hedged-grid-backtest/internal/models"
)

const maxPageLimit = 1000 // 币安单次请求最多1000条

// BarSink receives downloaded bars, normally storage.BarStore.
type BarSink interface {
	SaveBars(ctx context.Context, bars []models.Bar) (int, error)
}

// KlineDownloader 用于从币安下载K线数据并写入K线库
type KlineDownloader struct {
	client    *binance.Client
	sink      BarSink
	limiter   *rate.Limiter
	pageLimit int
	logger    *zap.SugaredLogger
}

// NewKlineDownloader 创建一个新的下载器实例
func NewKlineDownloader(cfg models.DownloaderConfig, sink BarSink, logger *zap.Logger) *KlineDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := binance.NewClient("", "") // 公共接口不需要API Key
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > maxPageLimit {
		pageLimit = maxPageLimit
	}
	// 避免过于频繁的请求
	every := rate.Inf
	if cfg.RequestIntervalMs > 0 {
		every = rate.Every(time.Duration(cfg.RequestIntervalMs) * time.Millisecond)
	}

	return &KlineDownloader{
		client:    client,
		sink:      sink,
		limiter:   rate.NewLimiter(every, 1),
		pageLimit: pageLimit,
		logger:    logger.Sugar(),
	}
}

// Download pages klines of [start, end] into the sink and returns how many
// bars were written. Bars already stored are replaced.
func (d *KlineDownloader) Download(ctx context.Context, symbol string, interval models.Interval, start, end time.Time) (int, error) {
	if _, err := interval.Duration(); err != nil {
		return 0, err
	}
	d.logger.Infof("开始下载 %s %s 从 %s 到 %s 的K线数据...", symbol, interval,
		start.Format(time.RFC3339), end.Format(time.RFC3339))

	total := 0
	for t := start; !t.After(end); {
		if err := d.limiter.Wait(ctx); err != nil {
			return total, err
		}

		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval(string(interval)).
			StartTime(t.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(d.pageLimit).
			Do(ctx)
		if err != nil {
			return total, fmt.Errorf("下载K线数据失败: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		bars := make([]models.Bar, 0, len(klines))
		for _, k := range klines {
			bar, err := klineToBar(symbol, interval, k)
			if err != nil {
				return total, err
			}
			bars = append(bars, bar)
		}
		n, err := d.sink.SaveBars(ctx, bars)
		if err != nil {
			return total, fmt.Errorf("保存K线失败: %w", err)
		}
		total += n

		// 更新下一次请求的开始时间
		next := time.UnixMilli(klines[len(klines)-1].CloseTime + 1).UTC()
		if !next.After(t) {
			break
		}
		t = next
		d.logger.Debugf("已下载数据至 %s", t.Format("2006-01-02 15:04:05"))
	}

	d.logger.Infof("成功下载 %d 根K线", total)
	return total, nil
}

func klineToBar(symbol string, interval models.Interval, k *binance.Kline) (models.Bar, error) {
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("kline %d field %d: %w", k.OpenTime, i+1, err)
		}
		vals[i] = v
	}
	return models.Bar{
		Symbol:   symbol,
		Interval: interval,
		Time:     time.UnixMilli(k.OpenTime).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
