// Package aggregator считает производные показатели по ряду измерений веса:
// экспоненциальное сглаживание и относительное изменение неделя к неделе и
// месяц к месяцу.
package aggregator

import (
	"time"

	"github.com/CoolE88/observatory/internal/domain"
)

// Alpha коэффициент экспоненциального сглаживания
const Alpha = 0.3

const day = 24 * time.Hour

// Window описывает сравнение двух соседних окон: текущее (last - t <= Length)
// и предыдущее (Length < last - t <= 2*Length). Считается только если ряд
// покрывает не меньше MinSpan.
type Window struct {
	Length  time.Duration
	MinSpan time.Duration
}

var (
	Week  = Window{Length: 7 * day, MinSpan: 14 * day}
	Month = Window{Length: 30 * day, MinSpan: 60 * day}
)

// Analyze строит отчёт по весу. weights должен быть отсортирован по возрастанию
// времени. Для пустого ряда возвращается отчёт без данных.
func Analyze(weights []domain.WeightSample) *domain.WeightReport {
	if len(weights) == 0 {
		return &domain.WeightReport{
			Weights:         []domain.WeightSample{},
			SmoothedWeights: []domain.WeightSample{},
		}
	}

	return &domain.WeightReport{
		Weights:              weights,
		SmoothedWeights:      Smooth(weights, Alpha),
		Count:                len(weights),
		ChangeWeekOverWeek:   Change(weights, Week),
		ChangeMonthOverMonth: Change(weights, Month),
	}
}

// Smooth экспоненциальное скользящее среднее, по одной точке на каждое измерение
func Smooth(weights []domain.WeightSample, alpha float64) []domain.WeightSample {
	smoothed := make([]domain.WeightSample, len(weights))
	for i, w := range weights {
		if i == 0 {
			smoothed[i] = w
			continue
		}
		smoothed[i] = domain.WeightSample{
			Timestamp: w.Timestamp,
			Weight:    alpha*w.Weight + (1-alpha)*smoothed[i-1].Weight,
		}
	}
	return smoothed
}

// Change возвращает 100 * (1 - avg(текущее окно) / avg(предыдущее окно)).
// nil, если истории недостаточно, одно из окон пустое или среднее предыдущего
// окна равно нулю.
func Change(weights []domain.WeightSample, w Window) *float64 {
	if len(weights) == 0 {
		return nil
	}

	first := weights[0].Timestamp
	last := weights[len(weights)-1].Timestamp
	if last.Sub(first) < w.MinSpan {
		return nil
	}

	var current, previous []float64
	for _, s := range weights {
		age := last.Sub(s.Timestamp)
		switch {
		case age <= w.Length:
			current = append(current, s.Weight)
		case age <= 2*w.Length:
			previous = append(previous, s.Weight)
		}
	}

	if len(current) == 0 || len(previous) == 0 {
		return nil
	}

	avgPrevious := average(previous)
	if avgPrevious == 0 {
		return nil
	}

	change := 100 * (1 - average(current)/avgPrevious)
	return &change
}

func average(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
