package models

// Config 结构体定义了回测程序的所有配置参数
type Config struct {
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Backtest   BacktestConfig   `json:"backtest" yaml:"backtest"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Downloader DownloaderConfig `json:"downloader" yaml:"downloader"`
	Recorder   RecorderConfig   `json:"recorder" yaml:"recorder"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	LogConfig  LogConfig        `json:"log" yaml:"log"`
}

// StrategyConfig 网格策略参数
type StrategyConfig struct {
	GridPct                     float64 `json:"grid_pct" yaml:"grid_pct"`                                               // 网格间距比例
	Levels                      int     `json:"levels" yaml:"levels"`                                                   // 每侧网格数量
	LongSizeInit                float64 `json:"long_size_init" yaml:"long_size_init"`                                   // 多头初始下单量
	ShortSizeInit               float64 `json:"short_size_init" yaml:"short_size_init"`                                 // 空头初始下单量
	MinOrderSize                float64 `json:"min_order_size" yaml:"min_order_size"`                                   // 最小下单量
	MaxIndividualPositionSize   float64 `json:"max_individual_position_size" yaml:"max_individual_position_size"`       // 单侧下单量上限
	MaxNetExposureLimit         float64 `json:"max_net_exposure_limit" yaml:"max_net_exposure_limit"`                   // 净敞口上限
	MaxAccountDrawdownPercent   float64 `json:"max_account_drawdown_percent" yaml:"max_account_drawdown_percent"`       // 最大回撤阈值 (0.5 = 50%)
	MakerRebateRate             float64 `json:"maker_rebate_rate" yaml:"maker_rebate_rate"`                             // 挂单返佣率
	TakerFeeRate                float64 `json:"taker_fee_rate" yaml:"taker_fee_rate"`                                   // 吃单手续费率
	AssumeMakerForRestingOrders bool    `json:"assume_maker_for_resting_orders" yaml:"assume_maker_for_resting_orders"` // 挂单成交是否按maker计费
	InitialEquityQuote          float64 `json:"initial_equity_quote" yaml:"initial_equity_quote"`                       // 初始权益 (计价货币)
	PriceRoundDP                int     `json:"price_round_dp" yaml:"price_round_dp"`                                   // 价格小数位
	MakerOnlyMode               bool    `json:"maker_only_mode" yaml:"maker_only_mode"`                                 // 只挂被动单
}

// BacktestConfig 回测运行参数
type BacktestConfig struct {
	StrategyName string   `json:"strategy_name" yaml:"strategy_name"`
	Symbol       string   `json:"symbol" yaml:"symbol"`
	Interval     Interval `json:"interval" yaml:"interval"`
	Start        string   `json:"start" yaml:"start"` // YYYY-MM-DD 或 RFC3339
	End          string   `json:"end" yaml:"end"`
	ChunkDays    int      `json:"chunk_days" yaml:"chunk_days"`
	RecordMode   string   `json:"record_mode" yaml:"record_mode"` // full | daily
	AnnualDays   int      `json:"annual_days" yaml:"annual_days"`
	OutputDir    string   `json:"output_dir" yaml:"output_dir"`
	Checkpoints  bool     `json:"checkpoints" yaml:"checkpoints"`
}

// StorageConfig 数据存储路径
type StorageConfig struct {
	BarDBPath   string `json:"bar_db_path" yaml:"bar_db_path"`     // SQLite K线库
	StateDBPath string `json:"state_db_path" yaml:"state_db_path"` // BadgerDB 运行记录
}

// DownloaderConfig 历史K线下载参数
type DownloaderConfig struct {
	BaseURL           string `json:"base_url" yaml:"base_url"`
	RequestIntervalMs int    `json:"request_interval_ms" yaml:"request_interval_ms"`
	PageLimit         int    `json:"page_limit" yaml:"page_limit"`
}

// RecorderConfig 实时K线录制参数
type RecorderConfig struct {
	WSBaseURL       string `json:"ws_base_url" yaml:"ws_base_url"`
	PingIntervalSec int    `json:"ping_interval_sec" yaml:"ping_interval_sec"`
	PongTimeoutSec  int    `json:"pong_timeout_sec" yaml:"pong_timeout_sec"`
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // 为空则不启动 HTTP 服务
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	Format     string `json:"format" yaml:"format"`           // 编码格式: "console", "json"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}

// DefaultStrategyName is the registry name of the hedged rebate grid.
const DefaultStrategyName = "DynamicHedgedRebateGrid"

// DefaultStrategyConfig returns the stock grid parameters.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		GridPct:                     0.0016,
		Levels:                      5,
		LongSizeInit:                0.005,
		ShortSizeInit:               0.005,
		MinOrderSize:                0.005,
		MaxIndividualPositionSize:   1.0,
		MaxNetExposureLimit:         5.0,
		MaxAccountDrawdownPercent:   0.5,
		MakerRebateRate:             0.00005,
		TakerFeeRate:                0.0007,
		AssumeMakerForRestingOrders: true,
		InitialEquityQuote:          10000,
		PriceRoundDP:                2,
		MakerOnlyMode:               true,
	}
}

// DefaultConfig 返回带默认值的完整配置，配置文件会覆盖其中的字段
func DefaultConfig() *Config {
	return &Config{
		Strategy: DefaultStrategyConfig(),
		Backtest: BacktestConfig{
			StrategyName: DefaultStrategyName,
			Symbol:       "ETHUSDT",
			Interval:     Interval1m,
			ChunkDays:    15,
			RecordMode:   "full",
			AnnualDays:   365,
			OutputDir:    "output",
		},
		Storage: StorageConfig{
			BarDBPath:   "data/bars.db",
			StateDBPath: "data/state",
		},
		Downloader: DownloaderConfig{
			BaseURL:           "https://api.binance.com",
			RequestIntervalMs: 200,
			PageLimit:         1000,
		},
		Recorder: RecorderConfig{
			WSBaseURL:       "wss://stream.binance.com:9443",
			PingIntervalSec: 54,
			PongTimeoutSec:  60,
		},
		LogConfig: LogConfig{
			Level:  "info",
			Output: "console",
			Format: "console",
		},
	}
}
