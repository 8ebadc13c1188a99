package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"hedged-grid-backtest/internal/models"
)

const (
	EquityCurveFile = "equity_curve.csv"
	StatsFile       = "stats.json"
)

// WriteOutputs 将权益曲线和统计结果写入目录 dir
func WriteOutputs(dir string, curve []models.EquityPoint, s *models.Statistics) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}
	if err := writeCurve(filepath.Join(dir, EquityCurveFile), curve); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化统计结果失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, StatsFile), data, 0644); err != nil {
		return fmt.Errorf("写入统计结果失败: %w", err)
	}
	return nil
}

func writeCurve(path string, curve []models.EquityPoint) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"time", "equity", "drawdown", "max_drawdown"}); err != nil {
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for _, p := range curve {
		record := []string{
			p.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Equity, 'f', -1, 64),
			strconv.FormatFloat(p.Drawdown, 'f', -1, 64),
			strconv.FormatFloat(p.MaxDrawdown, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写入CSV记录失败: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("写入CSV失败: %w", err)
	}
	return file.Close()
}
