package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CoolE88/observatory/internal/domain"
)

// memStore хранилище в памяти с той же семантикой выборок, что и у postgres:
// диапазон включительный, порядок от новых к старым, NoLimit без ограничения.
type memStore struct {
	mu       sync.Mutex
	points   []domain.StoredPoint
	emitters []domain.Emitter
}

func (m *memStore) InsertPoint(_ context.Context, p domain.NewPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, domain.StoredPoint(p))
	return nil
}

func (m *memStore) InsertPoints(ctx context.Context, points []domain.NewPoint) error {
	for _, p := range points {
		if err := m.InsertPoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) selectPoints(tr domain.TimeRange, bucket string) []domain.StoredPoint {
	var out []domain.StoredPoint
	for _, p := range m.points {
		if !inRange(tr, p.Timestamp) {
			continue
		}
		if bucket != "" && p.Bucket != bucket {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// inRange повторяет условие запросов хранилища: from <= t < to
func inRange(tr domain.TimeRange, t time.Time) bool {
	return !t.Before(tr.From) && t.Before(tr.To)
}

func limited[T any](rows []T, limit int) []T {
	if limit != domain.NoLimit && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func (m *memStore) QueryPoints(_ context.Context, filter domain.QueryFilter) ([]domain.StoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return limited(m.selectPoints(filter.Range, filter.Bucket), filter.Limit), nil
}

func (m *memStore) DeletePoints(_ context.Context, tr domain.TimeRange, bucket string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.points[:0]
	var affected int64
	for _, p := range m.points {
		if inRange(tr, p.Timestamp) && (bucket == "" || p.Bucket == bucket) {
			affected++
			continue
		}
		kept = append(kept, p)
	}
	m.points = kept
	return affected, nil
}

func (m *memStore) DistinctBuckets(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]struct{}{}
	var out []string
	for _, p := range m.points {
		if _, ok := seen[p.Bucket]; !ok {
			seen[p.Bucket] = struct{}{}
			out = append(out, p.Bucket)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) QueryField(_ context.Context, bucket, field string, tr domain.TimeRange, limit int) ([]domain.FieldRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.FieldRow
	for _, p := range m.selectPoints(tr, bucket) {
		if v, ok := lookupNumber(p.Payload, strings.Split(field, ".")); ok {
			out = append(out, domain.FieldRow{Timestamp: p.Timestamp, Value: v})
		}
	}
	return limited(out, limit), nil
}

func (m *memStore) QueryCoordinates(_ context.Context, bucket string, tr domain.TimeRange, limit int) ([]domain.CoordinateRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.CoordinateRow
	for _, p := range m.selectPoints(tr, bucket) {
		var loc domain.GPSLocation
		if err := json.Unmarshal(p.Payload, &loc); err != nil {
			continue
		}
		out = append(out, domain.CoordinateRow{
			Timestamp: p.Timestamp,
			Longitude: loc.Geometry.Coordinates[0],
			Latitude:  loc.Geometry.Coordinates[1],
		})
	}
	return limited(out, limit), nil
}

func (m *memStore) QueryBucketStamps(_ context.Context, tr domain.TimeRange, limit int) ([]domain.BucketRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.BucketRow
	for _, p := range m.selectPoints(tr, "") {
		out = append(out, domain.BucketRow{Timestamp: p.Timestamp, Bucket: p.Bucket})
	}
	return limited(out, limit), nil
}

func (m *memStore) HealthCheck(context.Context) error { return nil }

func (m *memStore) InsertEmitter(_ context.Context, e domain.Emitter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.emitters {
		if existing.Description == e.Description {
			return domain.ErrConflict
		}
	}
	m.emitters = append(m.emitters, e)
	return nil
}

func (m *memStore) DeleteEmitters(_ context.Context, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.emitters[:0]
	var affected int64
	for _, e := range m.emitters {
		if e.Description == description {
			affected++
			continue
		}
		kept = append(kept, e)
	}
	m.emitters = kept
	return affected, nil
}

func (m *memStore) ListEmitters(context.Context) ([]domain.Emitter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Emitter(nil), m.emitters...), nil
}

func (m *memStore) FindEmitterByToken(_ context.Context, token string) (*domain.Emitter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.emitters {
		if e.Token != token {
			continue
		}
		if e.ExpiresAt != nil && !e.ExpiresAt.After(time.Now()) {
			return nil, nil
		}
		found := e
		return &found, nil
	}
	return nil, nil
}

func lookupNumber(payload json.RawMessage, path []string) (float64, bool) {
	var node any
	if err := json.Unmarshal(payload, &node); err != nil {
		return 0, false
	}
	for _, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return 0, false
		}
		if node, ok = obj[key]; !ok {
			return 0, false
		}
	}
	v, ok := node.(float64)
	return v, ok
}
