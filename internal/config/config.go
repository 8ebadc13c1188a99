package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hedged-grid-backtest/internal/account"
	"hedged-grid-backtest/internal/models"
)

// ErrInvalidConfig marks values no run can start from.
var ErrInvalidConfig = errors.New("invalid config")

const (
	fallbackRoundDP       = 2
	fallbackInitialEquity = 10000.0
	maxRoundDP            = 10
)

// 环境变量覆盖项
const (
	EnvBarDB      = "GRIDBT_BAR_DB"
	EnvStateDB    = "GRIDBT_STATE_DB"
	EnvBinanceURL = "BINANCE_BASE_URL"
)

// LoadConfig 从指定路径加载配置文件 (JSON 或 YAML) 并覆盖默认配置
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := models.DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(config)
	default:
		err = json.NewDecoder(file).Decode(config)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return config, nil
}

// ApplyEnv 用环境变量覆盖存储路径和交易所地址
func ApplyEnv(cfg *models.Config) {
	if v := os.Getenv(EnvBarDB); v != "" {
		cfg.Storage.BarDBPath = v
	}
	if v := os.Getenv(EnvStateDB); v != "" {
		cfg.Storage.StateDBPath = v
	}
	if v := os.Getenv(EnvBinanceURL); v != "" {
		cfg.Downloader.BaseURL = v
	}
}

// Normalize replaces out-of-range values with safe defaults, warning for each.
func Normalize(cfg *models.Config, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &cfg.Strategy
	if s.PriceRoundDP < 0 || s.PriceRoundDP > maxRoundDP {
		logger.Warn("price_round_dp out of range, using fallback",
			zap.Int("configured", s.PriceRoundDP), zap.Int("fallback", fallbackRoundDP))
		s.PriceRoundDP = fallbackRoundDP
	}
	if s.InitialEquityQuote <= 0 {
		logger.Warn("initial_equity_quote must be positive, using fallback",
			zap.Float64("configured", s.InitialEquityQuote), zap.Float64("fallback", fallbackInitialEquity))
		s.InitialEquityQuote = fallbackInitialEquity
	}
}

// Validate rejects configurations that cannot describe a run.
func Validate(cfg *models.Config) error {
	s := cfg.Strategy
	switch {
	case s.Levels < 1:
		return fmt.Errorf("%w: levels must be >= 1, got %d", ErrInvalidConfig, s.Levels)
	case s.GridPct <= 0:
		return fmt.Errorf("%w: grid_pct must be > 0, got %g", ErrInvalidConfig, s.GridPct)
	case s.MinOrderSize <= 0:
		return fmt.Errorf("%w: min_order_size must be > 0, got %g", ErrInvalidConfig, s.MinOrderSize)
	case s.MinOrderSize > s.MaxIndividualPositionSize:
		return fmt.Errorf("%w: min_order_size %g exceeds max_individual_position_size %g",
			ErrInvalidConfig, s.MinOrderSize, s.MaxIndividualPositionSize)
	}

	b := cfg.Backtest
	if b.ChunkDays < 1 {
		return fmt.Errorf("%w: chunk_days must be >= 1, got %d", ErrInvalidConfig, b.ChunkDays)
	}
	if _, err := b.Interval.Duration(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := account.ParseRecordMode(b.RecordMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if b.Start != "" && b.End != "" {
		if _, _, err := ParseRange(b.Start, b.End); err != nil {
			return err
		}
	}
	return nil
}

// ParseTime accepts YYYY-MM-DD (UTC midnight) or RFC3339.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q, want YYYY-MM-DD or RFC3339", ErrInvalidConfig, s)
	}
	return t.UTC(), nil
}

// ParseRange parses both ends and rejects end before start.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	from, err := ParseTime(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseTime(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s is before start %s",
			ErrInvalidConfig, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return from, to, nil
}
