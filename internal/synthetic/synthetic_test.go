package synthetic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedged-grid-backtest/internal/models"
)

func TestGenerateBarsShape(t *testing.T) {
	start := time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	bars, err := GenerateBars("SYNTH", models.Interval1m, start, end, DefaultParams())
	require.NoError(t, err)
	require.Len(t, bars, 121)

	assert.Equal(t, 1600.0, bars[0].Open)
	assert.Equal(t, end, bars[len(bars)-1].Time)
	for i, b := range bars {
		assert.GreaterOrEqual(t, b.High, max(b.Open, b.Close))
		assert.LessOrEqual(t, b.Low, min(b.Open, b.Close))
		assert.Greater(t, b.Low, 0.0)
		if i > 0 {
			assert.Equal(t, bars[i-1].Close, b.Open, "bar %d should open at the previous close", i)
			assert.Equal(t, time.Minute, b.Time.Sub(bars[i-1].Time))
		}
	}
}

func TestGenerateBarsDeterministic(t *testing.T) {
	start := time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC)
	a, err := GenerateBars("SYNTH", models.Interval1m, start, start.Add(time.Hour), DefaultParams())
	require.NoError(t, err)
	b, err := GenerateBars("SYNTH", models.Interval1m, start, start.Add(time.Hour), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p := DefaultParams()
	p.Seed = 7
	c, err := GenerateBars("SYNTH", models.Interval1m, start, start.Add(time.Hour), p)
	require.NoError(t, err)
	assert.NotEqual(t, a[len(a)-1].Close, c[len(c)-1].Close)
}

func TestGenerateBarsErrors(t *testing.T) {
	start := time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC)

	_, err := GenerateBars("SYNTH", "7m", start, start, DefaultParams())
	assert.Error(t, err)

	_, err = GenerateBars("SYNTH", models.Interval1m, start, start.Add(-time.Minute), DefaultParams())
	assert.Error(t, err)

	p := DefaultParams()
	p.StartPrice = 0
	_, err = GenerateBars("SYNTH", models.Interval1m, start, start, p)
	assert.Error(t, err)
}
