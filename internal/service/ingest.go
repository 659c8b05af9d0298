package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/metrics"
	"github.com/CoolE88/observatory/internal/timefilter"

	"go.uber.org/zap"
)

// IngestRequest одна входящая точка; пустой Timestamp означает "сейчас"
type IngestRequest struct {
	Timestamp string          `json:"timestamp,omitempty"`
	Bucket    string          `json:"bucket"`
	Payload   json.RawMessage `json:"payload"`
}

// Ingest проверяет точку и дописывает её в хранилище
func (s *DataService) Ingest(ctx context.Context, emitter string, req IngestRequest) error {
	point, err := s.newPoint(req.Timestamp, req.Bucket, req.Payload)
	if err != nil {
		return err
	}

	if err := s.repo.InsertPoint(ctx, point); err != nil {
		s.logger.Error("[DataService] Failed to insert point",
			zap.String("emitter", emitter),
			zap.String("bucket", point.Bucket),
			zap.Error(err))
		return err
	}

	metrics.PointsIngested.WithLabelValues(emitter).Inc()
	s.logger.Debug("[DataService] Point ingested",
		zap.String("emitter", emitter),
		zap.String("bucket", point.Bucket),
		zap.Time("timestamp", point.Timestamp))

	return nil
}

// IngestQuery вариант для устройств, которые умеют только GET/POST с параметрами в URL.
// Payload собирается из всех параметров запроса; числа сохраняются как числа,
// повторяющийся ключ даёт массив.
func (s *DataService) IngestQuery(ctx context.Context, emitter, bucket string, values url.Values) error {
	payload, err := json.Marshal(queryPayload(values))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	return s.Ingest(ctx, emitter, IngestRequest{
		Timestamp: values.Get("timestamp"),
		Bucket:    bucket,
		Payload:   payload,
	})
}

// IngestGPS пишет пачку GeoJSON-точек одной операцией; время берётся из properties.timestamp
func (s *DataService) IngestGPS(ctx context.Context, emitter, bucket string, locations []domain.GPSLocation) (int, error) {
	points := make([]domain.NewPoint, 0, len(locations))
	for i, loc := range locations {
		ts, err := gpsTimestamp(loc.Properties)
		if err != nil {
			return 0, fmt.Errorf("location %d: %w", i, err)
		}

		payload, err := json.Marshal(loc)
		if err != nil {
			return 0, fmt.Errorf("failed to encode location %d: %w", i, err)
		}

		point, err := s.newPoint(ts, bucket, payload)
		if err != nil {
			return 0, fmt.Errorf("location %d: %w", i, err)
		}
		points = append(points, point)
	}

	if err := s.repo.InsertPoints(ctx, points); err != nil {
		s.logger.Error("[DataService] Failed to insert locations",
			zap.String("emitter", emitter),
			zap.String("bucket", bucket),
			zap.Int("count", len(points)),
			zap.Error(err))
		return 0, err
	}

	metrics.PointsIngested.WithLabelValues(emitter).Add(float64(len(points)))
	s.logger.Info("[DataService] Locations ingested",
		zap.String("emitter", emitter),
		zap.String("bucket", bucket),
		zap.Int("count", len(points)))

	return len(points), nil
}

func (s *DataService) newPoint(timestamp, bucket string, payload json.RawMessage) (domain.NewPoint, error) {
	if bucket == "" {
		return domain.NewPoint{}, fmt.Errorf("%w: bucket is required", domain.ErrBadRequest)
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return domain.NewPoint{}, fmt.Errorf("%w: payload is required", domain.ErrBadRequest)
	}
	if !json.Valid(payload) {
		return domain.NewPoint{}, fmt.Errorf("%w: payload is not valid JSON", domain.ErrBadRequest)
	}

	ts := s.now()
	if timestamp != "" {
		parsed, err := timefilter.ParseInstant(timestamp)
		if err != nil {
			return domain.NewPoint{}, fmt.Errorf("timestamp: %w", err)
		}
		ts = parsed
	}

	return domain.NewPoint{Timestamp: ts, Bucket: bucket, Payload: payload}, nil
}

func queryPayload(values url.Values) map[string]any {
	payload := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			payload[key] = scalar(vals[0])
			continue
		}
		items := make([]any, len(vals))
		for i, v := range vals {
			items[i] = scalar(v)
		}
		payload[key] = items
	}
	return payload
}

func scalar(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return f
}

func gpsTimestamp(properties json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(properties)) == 0 || string(bytes.TrimSpace(properties)) == "null" {
		return "", nil
	}

	var props struct {
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal(properties, &props); err != nil {
		return "", fmt.Errorf("%w: invalid properties", domain.ErrBadRequest)
	}
	if props.Timestamp == nil {
		return "", nil
	}
	if *props.Timestamp == "" {
		return "", fmt.Errorf("%w: empty properties.timestamp", domain.ErrInvalidDate)
	}
	return *props.Timestamp, nil
}
