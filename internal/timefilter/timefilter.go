// Package timefilter превращает необязательные параметры запроса from/to/past_days
// в конкретный диапазон времени для хранилища.
package timefilter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CoolE88/observatory/internal/domain"
)

// Params сырые значения из query string; пустая строка означает отсутствие параметра
type Params struct {
	From     string
	To       string
	PastDays string
}

// FromQuery извлекает параметры диапазона из query string
func FromQuery(q url.Values) Params {
	return Params{
		From:     q.Get("from"),
		To:       q.Get("to"),
		PastDays: q.Get("past_days"),
	}
}

type Resolver struct {
	loc *time.Location
	now func() time.Time
}

func NewResolver(loc *time.Location, now func() time.Time) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{loc: loc, now: now}
}

// Resolve строит диапазон. past_days полностью перекрывает from/to.
// from > to не считается ошибкой: хранилище просто вернёт пустой результат.
func (r *Resolver) Resolve(p Params) (domain.TimeRange, error) {
	if p.PastDays != "" {
		days, err := ParseUint("past_days", p.PastDays)
		if err != nil {
			return domain.TimeRange{}, err
		}
		return r.PastDays(days), nil
	}

	tr := domain.FullRange()
	if p.From != "" {
		from, err := ParseInstant(p.From)
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("from: %w", err)
		}
		tr.From = from
	}
	if p.To != "" {
		to, err := ParseInstant(p.To)
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("to: %w", err)
		}
		tr.To = to
	}
	return tr, nil
}

// PastDays возвращает [now - days, now); дни календарные в часовом поясе резолвера.
// Нижняя граница не опускается ниже domain.MinInstant.
func (r *Resolver) PastDays(days int) domain.TimeRange {
	now := r.now().In(r.loc)
	from := now.AddDate(0, 0, -days).UTC()
	if from.Before(domain.MinInstant) {
		from = domain.MinInstant
	}
	return domain.TimeRange{
		From: from,
		To:   now.UTC(),
	}
}

// Now текущее время по часам резолвера
func (r *Resolver) Now() time.Time {
	return r.now().UTC()
}

// ParseInstant разбирает RFC 3339 instant (дробные секунды допускаются)
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", domain.ErrInvalidDate, s, err)
	}
	return t.UTC(), nil
}

// ParseUint разбирает неотрицательное целое из query-параметра
func ParseUint(name, value string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer, got %q", domain.ErrBadRequest, name, value)
	}
	return int(n), nil
}

// OptionalUint как ParseUint, но пустое значение даёт nil
func OptionalUint(name, value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := ParseUint(name, value)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
