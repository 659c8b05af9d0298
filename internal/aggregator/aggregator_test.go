package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/CoolE88/observatory/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func samplesAt(days []int, weights []float64) []domain.WeightSample {
	out := make([]domain.WeightSample, len(days))
	for i := range days {
		out[i] = domain.WeightSample{
			Timestamp: base.Add(time.Duration(days[i]) * day),
			Weight:    weights[i],
		}
	}
	return out
}

func daily(n int, weight func(i int) float64) []domain.WeightSample {
	out := make([]domain.WeightSample, n)
	for i := range out {
		out[i] = domain.WeightSample{Timestamp: base.Add(time.Duration(i) * day), Weight: weight(i)}
	}
	return out
}

func TestAnalyze_Empty(t *testing.T) {
	report := Analyze(nil)

	require.NotNil(t, report)
	assert.Equal(t, 0, report.Count)
	assert.Empty(t, report.Weights)
	assert.Empty(t, report.SmoothedWeights)
	assert.Nil(t, report.ChangeWeekOverWeek)
	assert.Nil(t, report.ChangeMonthOverMonth)
}

func TestSmooth(t *testing.T) {
	weights := samplesAt([]int{0, 1, 2}, []float64{80, 90, 70})

	smoothed := Smooth(weights, Alpha)

	require.Len(t, smoothed, 3)
	assert.Equal(t, 80.0, smoothed[0].Weight)
	assert.InDelta(t, 83.0, smoothed[1].Weight, 1e-9)
	assert.InDelta(t, 79.1, smoothed[2].Weight, 1e-9)
	for i := range weights {
		assert.Equal(t, weights[i].Timestamp, smoothed[i].Timestamp)
	}
}

func TestSmooth_Damping(t *testing.T) {
	weights := daily(50, func(i int) float64 { return 80 + 5*math.Sin(float64(i)) })

	smoothed := Smooth(weights, Alpha)

	assert.Equal(t, weights[0].Weight, smoothed[0].Weight)
	for i := 1; i < len(weights); i++ {
		lo := math.Min(weights[i].Weight, smoothed[i-1].Weight)
		hi := math.Max(weights[i].Weight, smoothed[i-1].Weight)
		assert.GreaterOrEqual(t, smoothed[i].Weight, lo-1e-9)
		assert.LessOrEqual(t, smoothed[i].Weight, hi+1e-9)
	}
}

func TestChange_ThirteenDaysHasNoChanges(t *testing.T) {
	report := Analyze(daily(14, func(i int) float64 { return 80 - float64(i)/10 }))

	assert.Equal(t, 14, report.Count)
	assert.Nil(t, report.ChangeWeekOverWeek)
	assert.Nil(t, report.ChangeMonthOverMonth)
}

func TestChange_FifteenDaysHasWeekOverWeekOnly(t *testing.T) {
	report := Analyze(daily(16, func(i int) float64 { return 80 - float64(i)/10 }))

	require.NotNil(t, report.ChangeWeekOverWeek)
	assert.Greater(t, *report.ChangeWeekOverWeek, 0.0)
	assert.Nil(t, report.ChangeMonthOverMonth)
}

func TestChange_WeekBoundaries(t *testing.T) {
	// дни 0,7,8,14: текущая неделя {7,8,14}, предыдущая {0}
	weights := samplesAt([]int{0, 7, 8, 14}, []float64{80, 79, 78, 77})

	change := Change(weights, Week)

	require.NotNil(t, change)
	assert.InDelta(t, 2.5, *change, 1e-9)
	assert.Nil(t, Change(weights, Month))
}

func TestChange_EmptyPreviousWindow(t *testing.T) {
	// разрыв в измерениях: в предыдущей неделе нет ни одной точки
	weights := samplesAt([]int{0, 15, 20}, []float64{80, 79, 78})

	assert.Nil(t, Change(weights, Week))
}

func TestChange_MonthOverMonth(t *testing.T) {
	weights := daily(61, func(i int) float64 {
		if i > 30 {
			return 90
		}
		return 100
	})

	change := Change(weights, Month)

	require.NotNil(t, change)
	// текущий месяц: дни 30..60 (день 30 ровно на границе), предыдущий: 0..29
	expectedCurrent := (100 + 30*90.0) / 31
	assert.InDelta(t, 100*(1-expectedCurrent/100), *change, 1e-9)
}

func TestChange_ZeroPreviousAverage(t *testing.T) {
	weights := samplesAt([]int{0, 14}, []float64{0, 10})

	assert.Nil(t, Change(weights, Week))
}

func TestChange_Empty(t *testing.T) {
	assert.Nil(t, Change(nil, Week))
}
