package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/CoolE88/observatory/internal/aggregator"
	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/metrics"
	"github.com/CoolE88/observatory/internal/timefilter"
	"github.com/CoolE88/observatory/pkg/utils"

	"go.uber.org/zap"
)

type Repository interface {
	InsertPoint(ctx context.Context, p domain.NewPoint) error
	InsertPoints(ctx context.Context, points []domain.NewPoint) error
	QueryPoints(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredPoint, error)
	DeletePoints(ctx context.Context, tr domain.TimeRange, bucket string) (int64, error)
	DistinctBuckets(ctx context.Context) ([]string, error)
	QueryField(ctx context.Context, bucket, field string, tr domain.TimeRange, limit int) ([]domain.FieldRow, error)
	QueryCoordinates(ctx context.Context, bucket string, tr domain.TimeRange, limit int) ([]domain.CoordinateRow, error)
	QueryBucketStamps(ctx context.Context, tr domain.TimeRange, limit int) ([]domain.BucketRow, error)
	HealthCheck(ctx context.Context) error
}

// QueryParams сырые параметры выборки в том виде, в каком они пришли от клиента
type QueryParams struct {
	Range  timefilter.Params
	Bucket string
	Limit  string
	Sample string
}

type DataService struct {
	repo         Repository
	resolver     *timefilter.Resolver
	defaultLimit int
	weightBucket string
	logger       *zap.Logger
}

func NewDataService(repo Repository, resolver *timefilter.Resolver, defaultLimit int, weightBucket string, logger *zap.Logger) *DataService {
	return &DataService{
		repo:         repo,
		resolver:     resolver,
		defaultLimit: defaultLimit,
		weightBucket: weightBucket,
		logger:       logger,
	}
}

func (s *DataService) CheckDBConnection(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// Filter превращает параметры запроса в ограниченную выборку
func (s *DataService) Filter(p QueryParams) (domain.QueryFilter, error) {
	tr, err := s.resolver.Resolve(p.Range)
	if err != nil {
		return domain.QueryFilter{}, err
	}

	limit := s.defaultLimit
	if p.Limit != "" {
		if limit, err = timefilter.ParseUint("limit", p.Limit); err != nil {
			return domain.QueryFilter{}, err
		}
	}

	sample, err := timefilter.OptionalUint("sample", p.Sample)
	if err != nil {
		return domain.QueryFilter{}, err
	}

	return domain.QueryFilter{
		Range:  tr,
		Bucket: p.Bucket,
		Limit:  limit,
		Sample: sample,
	}, nil
}

// Query разбирает параметры и выполняет Fetch
func (s *DataService) Query(ctx context.Context, p QueryParams) ([]domain.DataPoint, error) {
	filter, err := s.Filter(p)
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, filter)
}

// Fetch возвращает точки от новых к старым. Время каждой строки приводится к
// каноническому виду, затем результат прореживается до filter.Sample.
func (s *DataService) Fetch(ctx context.Context, filter domain.QueryFilter) ([]domain.DataPoint, error) {
	rows, err := s.repo.QueryPoints(ctx, filter)
	if err != nil {
		s.logger.Error("[DataService] Failed to query points",
			zap.String("bucket", filter.Bucket),
			zap.Time("from", filter.Range.From),
			zap.Time("to", filter.Range.To),
			zap.Error(err))
		return nil, err
	}

	points := make([]domain.DataPoint, len(rows))
	for i, row := range rows {
		points[i] = domain.DataPoint{
			Timestamp: domain.FormatInstant(row.Timestamp),
			Bucket:    row.Bucket,
			Payload:   row.Payload,
		}
	}

	points = utils.Sample(filter.Sample, points)
	metrics.PointsReturned.Observe(float64(len(points)))

	return points, nil
}

// Delete удаляет все точки в диапазоне (и бакете, если задан)
func (s *DataService) Delete(ctx context.Context, p timefilter.Params, bucket string) (int64, error) {
	tr, err := s.resolver.Resolve(p)
	if err != nil {
		return 0, err
	}

	affected, err := s.repo.DeletePoints(ctx, tr, bucket)
	if err != nil {
		s.logger.Error("[DataService] Failed to delete points", zap.String("bucket", bucket), zap.Error(err))
		return 0, err
	}

	s.logger.Info("[DataService] Deleted points",
		zap.String("bucket", bucket),
		zap.Time("from", tr.From),
		zap.Time("to", tr.To),
		zap.Int64("affected_rows", affected))

	return affected, nil
}

func (s *DataService) Buckets(ctx context.Context) ([]string, error) {
	buckets, err := s.repo.DistinctBuckets(ctx)
	if err != nil {
		s.logger.Error("[DataService] Failed to list buckets", zap.Error(err))
		return nil, err
	}
	if buckets == nil {
		buckets = []string{}
	}
	return buckets, nil
}

// Series возвращает числовое поле payload в хронологическом порядке
func (s *DataService) Series(ctx context.Context, field string, p QueryParams) ([]domain.FieldValue, error) {
	if p.Bucket == "" || field == "" {
		return nil, fmt.Errorf("%w: bucket and field are required", domain.ErrBadRequest)
	}

	filter, err := s.Filter(p)
	if err != nil {
		return nil, err
	}
	if p.Limit == "" {
		filter.Limit = domain.NoLimit
	}

	rows, err := s.repo.QueryField(ctx, filter.Bucket, field, filter.Range, filter.Limit)
	if err != nil {
		s.logger.Error("[DataService] Failed to query field",
			zap.String("bucket", filter.Bucket), zap.String("field", field), zap.Error(err))
		return nil, err
	}

	values := make([]domain.FieldValue, len(rows))
	for i, row := range rows {
		values[len(rows)-1-i] = domain.FieldValue{
			Timestamp: domain.FormatInstant(row.Timestamp),
			Value:     row.Value,
		}
	}

	return utils.Sample(filter.Sample, values), nil
}

// Coordinates возвращает GPS-координаты бакета от новых к старым
func (s *DataService) Coordinates(ctx context.Context, p QueryParams) ([]domain.GPSCoordinate, error) {
	filter, err := s.Filter(p)
	if err != nil {
		return nil, err
	}
	if p.Limit == "" {
		filter.Limit = domain.NoLimit
	}

	rows, err := s.repo.QueryCoordinates(ctx, filter.Bucket, filter.Range, filter.Limit)
	if err != nil {
		s.logger.Error("[DataService] Failed to query coordinates", zap.String("bucket", filter.Bucket), zap.Error(err))
		return nil, err
	}

	coords := make([]domain.GPSCoordinate, len(rows))
	for i, row := range rows {
		coords[i] = domain.GPSCoordinate{
			Timestamp: domain.FormatInstant(row.Timestamp),
			Longitude: row.Longitude,
			Latitude:  row.Latitude,
		}
	}

	return utils.Sample(filter.Sample, coords), nil
}

// Activity возвращает пары (timestamp, bucket) от новых к старым
func (s *DataService) Activity(ctx context.Context, p QueryParams) ([]domain.BucketStamp, error) {
	filter, err := s.Filter(p)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.QueryBucketStamps(ctx, filter.Range, filter.Limit)
	if err != nil {
		s.logger.Error("[DataService] Failed to query activity", zap.Error(err))
		return nil, err
	}

	stamps := make([]domain.BucketStamp, len(rows))
	for i, row := range rows {
		stamps[i] = domain.BucketStamp{Timestamp: domain.FormatInstant(row.Timestamp), Bucket: row.Bucket}
	}
	return stamps, nil
}

// Weight строит отчёт по весу за диапазон. Если измерений нет, отчёт пустой.
func (s *DataService) Weight(ctx context.Context, p timefilter.Params) (*domain.WeightReport, error) {
	tr, err := s.resolver.Resolve(p)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.QueryField(ctx, s.weightBucket, "weight", tr, domain.NoLimit)
	if err != nil {
		s.logger.Error("[DataService] Failed to query weights", zap.String("bucket", s.weightBucket), zap.Error(err))
		return nil, err
	}

	// хранилище отдаёт от новых к старым, аналитике нужен обратный порядок
	weights := make([]domain.WeightSample, len(rows))
	for i, row := range rows {
		weights[i] = domain.WeightSample{Timestamp: row.Timestamp, Weight: row.Value}
	}
	slices.Reverse(weights)

	report := aggregator.Analyze(weights)
	if report.Count == 0 {
		s.logger.Info("[DataService] No weight samples in range",
			zap.Time("from", tr.From), zap.Time("to", tr.To))
	}
	return report, nil
}

func (s *DataService) now() time.Time {
	return s.resolver.Now()
}
