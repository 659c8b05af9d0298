package timefilter

import (
	"net/url"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/CoolE88/observatory/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestResolver_Defaults(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	tr, err := r.Resolve(Params{})
	require.NoError(t, err)
	assert.Equal(t, domain.MinInstant, tr.From)
	assert.Equal(t, domain.MaxInstant, tr.To)
}

func TestResolver_FromTo(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	tr, err := r.Resolve(Params{From: "2024-03-01T10:00:00+02:00", To: "2024-03-02T00:00:00.5Z"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), tr.From)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 500000000, time.UTC), tr.To)
}

func TestResolver_OnlyOneBound(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	tr, err := r.Resolve(Params{From: "2024-03-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxInstant, tr.To)

	tr, err = r.Resolve(Params{To: "2024-03-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, domain.MinInstant, tr.From)
}

func TestResolver_ReversedRangeIsPassedThrough(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	tr, err := r.Resolve(Params{From: "2024-03-02T00:00:00Z", To: "2024-03-01T00:00:00Z"})
	require.NoError(t, err)
	assert.True(t, tr.From.After(tr.To))
}

func TestResolver_InvalidDate(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	for _, p := range []Params{
		{From: "yesterday"},
		{To: "2024-13-01T00:00:00Z"},
		{From: "2024-03-01"},
	} {
		_, err := r.Resolve(p)
		assert.ErrorIs(t, err, domain.ErrInvalidDate)
		assert.True(t, domain.IsClientError(err))
	}
}

func TestResolver_PastDaysOverridesFromTo(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	r := NewResolver(time.UTC, fixedClock(now))

	tr, err := r.Resolve(Params{From: "garbage", To: "2000-01-01T00:00:00Z", PastDays: "3"})
	require.NoError(t, err)
	assert.Equal(t, now, tr.To)
	assert.Equal(t, now.Add(-72*time.Hour), tr.From)
}

func TestResolver_PastDaysSpan(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	for _, d := range []int{0, 1, 7, 14, 30, 365} {
		before := time.Now()
		tr := r.PastDays(d)
		after := time.Now()

		assert.Equal(t, time.Duration(d)*24*time.Hour, tr.To.Sub(tr.From), "past_days=%d", d)
		assert.False(t, tr.To.Before(before.Add(-time.Second)))
		assert.False(t, tr.To.After(after.Add(time.Second)))
	}
}

func TestResolver_PastDaysUsesCalendarDaysInZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	// переход на летнее время 31 марта 2024
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, loc)
	r := NewResolver(loc, fixedClock(now))

	tr := r.PastDays(2)
	assert.Equal(t, time.Date(2024, 3, 30, 12, 0, 0, 0, loc).UTC(), tr.From)
	assert.Equal(t, 47*time.Hour, tr.To.Sub(tr.From))
}

func TestResolver_HugePastDaysIsClamped(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	r := NewResolver(time.UTC, fixedClock(now))

	for _, d := range []string{"3000000", "2147483647"} {
		tr, err := r.Resolve(Params{PastDays: d})
		require.NoError(t, err, "past_days=%s", d)
		assert.Equal(t, domain.MinInstant, tr.From, "past_days=%s", d)
		assert.Equal(t, now, tr.To, "past_days=%s", d)
	}

	// граница ровно на MinInstant остаётся как есть
	days := int(now.Sub(domain.MinInstant).Hours() / 24)
	tr := r.PastDays(days)
	assert.False(t, tr.From.Before(domain.MinInstant))
	assert.True(t, tr.From.Before(domain.MinInstant.AddDate(0, 0, 2)))
}

func TestResolver_InvalidPastDays(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	_, err := r.Resolve(Params{PastDays: "-1"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = r.Resolve(Params{PastDays: "abc"})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestFromQuery(t *testing.T) {
	q := url.Values{}
	q.Set("from", "a")
	q.Set("to", "b")
	q.Set("past_days", "2")

	assert.Equal(t, Params{From: "a", To: "b", PastDays: "2"}, FromQuery(q))
}

func TestOptionalUint(t *testing.T) {
	n, err := OptionalUint("sample", "")
	assert.NoError(t, err)
	assert.Nil(t, n)

	n, err = OptionalUint("sample", "10")
	require.NoError(t, err)
	assert.Equal(t, 10, *n)

	_, err = OptionalUint("sample", "1.5")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
