package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"hedged-grid-backtest/internal/account"
	"hedged-grid-backtest/internal/backtest"
	"hedged-grid-backtest/internal/bot"
	"hedged-grid-backtest/internal/checkpoint"
	"hedged-grid-backtest/internal/config"
	"hedged-grid-backtest/internal/downloader"
	"hedged-grid-backtest/internal/exchange"
	"hedged-grid-backtest/internal/logger"
	"hedged-grid-backtest/internal/metrics"
	"hedged-grid-backtest/internal/models"
	"hedged-grid-backtest/internal/persistence"
	"hedged-grid-backtest/internal/recorder"
	"hedged-grid-backtest/internal/reporter"
	"hedged-grid-backtest/internal/storage"
	"hedged-grid-backtest/internal/strategy"
	"hedged-grid-backtest/internal/synthetic"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file (.json, .yaml)")
	mode := flag.String("mode", "backtest", "running mode: backtest, download, record, synthetic or runs")
	symbol := flag.String("symbol", "", "symbol, overrides backtest.symbol (e.g., ETHUSDT)")
	interval := flag.String("interval", "", "bar interval: 1m, 1h or 1d")
	startDate := flag.String("start", "", "start (YYYY-MM-DD or RFC3339)")
	endDate := flag.String("end", "", "end (YYYY-MM-DD or RFC3339)")
	chunkDays := flag.Int("chunk-days", 0, "days per streamed window")
	recordMode := flag.String("record-mode", "", "full or daily")
	outDir := flag.String("out", "", "output directory for equity_curve.csv and stats.json")
	strategyName := flag.String("strategy", "", "registered strategy name")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	// 为了在加载.env或配置时就能记录日志，先用默认配置初始化
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载配置 ---
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	config.ApplyEnv(cfg)
	applyFlags(cfg, *symbol, *interval, *startDate, *endDate, *chunkDays, *recordMode, *outDir, *strategyName)

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.Sync() // 确保在main函数退出时刷新所有缓冲的日志

	config.Normalize(cfg, logger.L())
	if err := config.Validate(cfg); err != nil {
		logger.S().Fatal(err)
	}

	// 等待中断信号以实现优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 根据模式执行 ---
	switch *mode {
	case "backtest":
		err = runBacktest(ctx, cfg)
	case "download":
		err = runDownload(ctx, cfg)
	case "record":
		err = runRecord(ctx, cfg)
	case "synthetic":
		err = runSynthetic(ctx, cfg)
	case "runs":
		err = listRuns(cfg)
	default:
		err = fmt.Errorf("未知的运行模式: %s", *mode)
	}
	if err != nil {
		logger.S().Errorf("%s 失败: %v", *mode, err)
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig 读取配置文件; 使用默认路径且文件不存在时退回默认配置
func loadConfig(path string) (*models.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "config.json" {
		logger.S().Warnf("配置文件 %s 不存在，使用默认配置。", path)
		return models.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func applyFlags(cfg *models.Config, symbol, interval, start, end string, chunkDays int, recordMode, outDir, strategyName string) {
	b := &cfg.Backtest
	if symbol != "" {
		b.Symbol = symbol
	}
	if interval != "" {
		b.Interval = models.Interval(interval)
	}
	if start != "" {
		b.Start = start
	}
	if end != "" {
		b.End = end
	}
	if chunkDays > 0 {
		b.ChunkDays = chunkDays
	}
	if recordMode != "" {
		b.RecordMode = recordMode
	}
	if outDir != "" {
		b.OutputDir = outDir
	}
	if strategyName != "" {
		b.StrategyName = strategyName
	}
}

func backtestRange(cfg *models.Config) (time.Time, time.Time, error) {
	if cfg.Backtest.Start == "" || cfg.Backtest.End == "" {
		return time.Time{}, time.Time{}, errors.New("需要通过 -start/-end 或 backtest.start/end 指定时间范围")
	}
	return config.ParseRange(cfg.Backtest.Start, cfg.Backtest.End)
}

func openBarStore(cfg *models.Config) (*storage.BarStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.BarDBPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	return storage.Open(cfg.Storage.BarDBPath)
}

// runBacktest 运行回测模式
func runBacktest(ctx context.Context, cfg *models.Config) error {
	logger.S().Info("--- 启动回测模式 ---")
	from, to, err := backtestRange(cfg)
	if err != nil {
		return err
	}
	recMode, err := account.ParseRecordMode(cfg.Backtest.RecordMode)
	if err != nil {
		return err
	}

	store, err := openBarStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	first, last, count, err := store.Coverage(ctx, cfg.Backtest.Symbol, cfg.Backtest.Interval)
	if err != nil {
		return err
	}
	if count == 0 {
		logger.S().Warnf("K线库中没有 %s %s 的数据，请先运行 -mode download 或 -mode synthetic", cfg.Backtest.Symbol, cfg.Backtest.Interval)
	} else {
		logger.S().Infof("K线库覆盖 %s ~ %s, 共 %d 根", first.Format(time.RFC3339), last.Format(time.RFC3339), count)
	}

	repo, err := persistence.NewBadgerRepository(cfg.Storage.StateDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	registry := strategy.NewRegistry()
	if err := bot.Register(registry); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	ex := exchange.NewBacktestExchange(cfg.Backtest.Symbol, logger.L())
	strat, err := registry.New(cfg.Backtest.StrategyName, strategy.Params{
		Config:     cfg.Strategy,
		RecordMode: recMode,
		Gateway:    ex,
		Logger:     logger.L(),
	})
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, registry.Names())
	}
	engine := backtest.NewEngine(ex, strat, collector)

	var checkpoints *checkpoint.Manager
	if cfg.Backtest.Checkpoints {
		checkpoints = checkpoint.NewManager(repo, logger.L())
		checkpoints.Start()
		defer checkpoints.Stop()
	}

	runner := backtest.NewRunner(store, engine, backtest.Options{
		AnnualDays:  cfg.Backtest.AnnualDays,
		Logger:      logger.L(),
		Metrics:     collector,
		Checkpoints: checkpoints,
	})

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		logger.S().Infof("Prometheus 指标地址 http://%s/metrics", addr)
		g.Go(func() error { return metrics.Serve(metricsCtx, addr, promRegistry) })
	}

	var res *backtest.Result
	g.Go(func() error {
		defer stopMetrics()
		var err error
		res, err = runner.Run(gctx, backtest.RunRequest{
			Symbol:    cfg.Backtest.Symbol,
			Interval:  cfg.Backtest.Interval,
			Start:     from,
			End:       to,
			ChunkDays: cfg.Backtest.ChunkDays,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// --- 生成并打印回测报告 ---
	reporter.Render(os.Stdout, reporter.Meta{
		RunID:    res.RunID,
		Strategy: strat.Name(),
		Symbol:   cfg.Backtest.Symbol,
		Interval: cfg.Backtest.Interval,
	}, res.Stats)

	outDir := filepath.Join(cfg.Backtest.OutputDir, res.RunID)
	if err := reporter.WriteOutputs(outDir, res.Curve, res.Stats); err != nil {
		return err
	}
	logger.S().Infof("结果已写入 %s", outDir)

	return repo.SaveRun(&models.RunRecord{
		RunID:     res.RunID,
		Strategy:  strat.Name(),
		Symbol:    cfg.Backtest.Symbol,
		Interval:  cfg.Backtest.Interval,
		Start:     from,
		End:       to,
		Params:    cfg.Strategy,
		Stats:     *res.Stats,
		Final:     res.Snapshot,
		CreatedAt: time.Now().UTC(),
	})
}

// runDownload 从币安下载历史K线到K线库
func runDownload(ctx context.Context, cfg *models.Config) error {
	from, to, err := backtestRange(cfg)
	if err != nil {
		return err
	}
	store, err := openBarStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	d := downloader.NewKlineDownloader(cfg.Downloader, store, logger.L())
	_, err = d.Download(ctx, cfg.Backtest.Symbol, cfg.Backtest.Interval, from, to)
	return err
}

// runRecord 录制实时K线直到收到中断信号
func runRecord(ctx context.Context, cfg *models.Config) error {
	store, err := openBarStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := recorder.NewKlineRecorder(cfg.Recorder, store, logger.L())
	return rec.Run(ctx, cfg.Backtest.Symbol, cfg.Backtest.Interval)
}

// runSynthetic 生成合成K线写入K线库
func runSynthetic(ctx context.Context, cfg *models.Config) error {
	from, to, err := backtestRange(cfg)
	if err != nil {
		return err
	}
	bars, err := synthetic.GenerateBars(cfg.Backtest.Symbol, cfg.Backtest.Interval, from, to, synthetic.DefaultParams())
	if err != nil {
		return err
	}
	store, err := openBarStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.SaveBars(ctx, bars)
	if err != nil {
		return err
	}
	logger.S().Infof("已生成 %d 根合成K线 (%s %s)", n, cfg.Backtest.Symbol, cfg.Backtest.Interval)
	return nil
}

// listRuns 打印已保存的回测记录
func listRuns(cfg *models.Config) error {
	repo, err := persistence.NewBadgerRepository(cfg.Storage.StateDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repo.ListRuns()
	if err != nil {
		return err
	}
	reporter.RenderRuns(os.Stdout, runs)
	return nil
}
