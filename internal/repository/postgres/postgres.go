package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CoolE88/observatory/internal/config"
	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRepository единственная точка доступа к хранилищу. Все обращения
// сериализуются одним мьютексом; запрос, начатый в хранилище, доводится до конца
// даже если клиент отключился.
type PostgresRepository struct {
	mu     sync.Mutex
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRepository(ctx context.Context, dbConfig config.DBConfig, logger *zap.Logger) (*PostgresRepository, error) {
	// Конфигурация пула
	poolConfig, err := pgxpool.ParseConfig(dbConfig.DBSource)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	poolConfig.MaxConns = int32(dbConfig.MaxDBConnections)
	poolConfig.MinConns = int32(dbConfig.MinDBConnections)
	poolConfig.MaxConnLifetime = dbConfig.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// База может подниматься дольше сервиса, ждём её с экспоненциальной задержкой
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = dbConfig.ConnectTimeout
	ping := func() error { return pool.Ping(ctx) }
	notify := func(err error, next time.Duration) {
		logger.Warn("Database is not reachable yet", zap.Error(err), zap.Duration("retry_in", next))
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	go monitorConnections(ctx, pool, logger)

	return &PostgresRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// monitorConnections периодически обновляет метрики соединений и завершается при отмене ctx
func monitorConnections(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping monitorConnections goroutine due to context cancellation")
			return
		case <-ticker.C:
			stats := pool.Stat()
			metrics.DBActiveConnections.Set(float64(stats.AcquiredConns()))
			metrics.DBIdleConnections.Set(float64(stats.IdleConns()))

			logger.Debug("Database connection stats",
				zap.Int("acquired", int(stats.AcquiredConns())),
				zap.Int("idle", int(stats.IdleConns())),
				zap.Int("max", int(stats.MaxConns())),
			)
		}
	}
}

// acquire захватывает хранилище на время одной операции
func (r *PostgresRepository) acquire(ctx context.Context, operation string) (context.Context, func()) {
	waitStart := time.Now()
	r.mu.Lock()
	metrics.DBLockWait.Observe(time.Since(waitStart).Seconds())

	start := time.Now()
	return context.WithoutCancel(ctx), func() {
		metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		r.mu.Unlock()
	}
}

func limitArg(limit int) any {
	if limit == domain.NoLimit {
		return nil
	}
	return limit
}

// instant проверяет, что хранилище вернуло конечное значение времени
func instant(ts pgtype.Timestamptz) (time.Time, error) {
	if !ts.Valid || ts.InfinityModifier != pgtype.Finite {
		return time.Time{}, domain.ErrCorruptTimestamp
	}
	return ts.Time.UTC(), nil
}

func (r *PostgresRepository) InsertPoint(ctx context.Context, p domain.NewPoint) error {
	ctx, release := r.acquire(ctx, "insert_point")
	defer release()

	if _, err := r.pool.Exec(ctx, insertPointQuery, p.Timestamp, p.Bucket, string(p.Payload)); err != nil {
		return fmt.Errorf("failed to insert point: %w", err)
	}
	return nil
}

// InsertPoints пишет все точки одной транзакцией под одним захватом хранилища
func (r *PostgresRepository) InsertPoints(ctx context.Context, points []domain.NewPoint) error {
	if len(points) == 0 {
		return nil
	}

	ctx, release := r.acquire(ctx, "insert_points")
	defer release()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range points {
			batch.Queue(insertPointQuery, p.Timestamp, p.Bucket, string(p.Payload))
		}

		br := tx.SendBatch(ctx, batch)
		for range points {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to insert %d points: %w", len(points), err)
	}
	return nil
}

func (r *PostgresRepository) QueryPoints(ctx context.Context, filter domain.QueryFilter) ([]domain.StoredPoint, error) {
	ctx, release := r.acquire(ctx, "query_points")
	defer release()

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Bucket != "" {
		rows, err = r.pool.Query(ctx, selectPointsByBucketQuery,
			filter.Bucket, filter.Range.From, filter.Range.To, limitArg(filter.Limit))
	} else {
		rows, err = r.pool.Query(ctx, selectPointsQuery,
			filter.Range.From, filter.Range.To, limitArg(filter.Limit))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var results []domain.StoredPoint
	for rows.Next() {
		var (
			ts pgtype.Timestamptz
			p  domain.StoredPoint
		)
		if err := rows.Scan(&ts, &p.Bucket, &p.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if p.Timestamp, err = instant(ts); err != nil {
			return nil, fmt.Errorf("bucket %q: %w", p.Bucket, err)
		}
		results = append(results, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

func (r *PostgresRepository) DeletePoints(ctx context.Context, tr domain.TimeRange, bucket string) (int64, error) {
	ctx, release := r.acquire(ctx, "delete_points")
	defer release()

	var (
		tag pgconn.CommandTag
		err error
	)
	if bucket != "" {
		tag, err = r.pool.Exec(ctx, deletePointsByBucketQuery, bucket, tr.From, tr.To)
	} else {
		tag, err = r.pool.Exec(ctx, deletePointsQuery, tr.From, tr.To)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete points: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) DistinctBuckets(ctx context.Context) ([]string, error) {
	ctx, release := r.acquire(ctx, "distinct_buckets")
	defer release()

	rows, err := r.pool.Query(ctx, selectDistinctBucketsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}

	buckets, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect buckets: %w", err)
	}
	return buckets, nil
}

// QueryField извлекает числовое поле payload по пути вида "climate.co2".
// Строки, где поле отсутствует или не является числом, пропускаются.
func (r *PostgresRepository) QueryField(ctx context.Context, bucket, field string, tr domain.TimeRange, limit int) ([]domain.FieldRow, error) {
	ctx, release := r.acquire(ctx, "query_field")
	defer release()

	path := strings.Split(field, ".")
	rows, err := r.pool.Query(ctx, selectFieldQuery, bucket, path, tr.From, tr.To, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query field %q: %w", field, err)
	}
	defer rows.Close()

	var results []domain.FieldRow
	for rows.Next() {
		var (
			ts  pgtype.Timestamptz
			row domain.FieldRow
		)
		if err := rows.Scan(&ts, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if row.Timestamp, err = instant(ts); err != nil {
			return nil, err
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

func (r *PostgresRepository) QueryCoordinates(ctx context.Context, bucket string, tr domain.TimeRange, limit int) ([]domain.CoordinateRow, error) {
	ctx, release := r.acquire(ctx, "query_coordinates")
	defer release()

	rows, err := r.pool.Query(ctx, selectCoordinatesQuery, bucket, tr.From, tr.To, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query coordinates: %w", err)
	}
	defer rows.Close()

	var results []domain.CoordinateRow
	for rows.Next() {
		var (
			ts  pgtype.Timestamptz
			row domain.CoordinateRow
		)
		if err := rows.Scan(&ts, &row.Longitude, &row.Latitude); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if row.Timestamp, err = instant(ts); err != nil {
			return nil, err
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

func (r *PostgresRepository) QueryBucketStamps(ctx context.Context, tr domain.TimeRange, limit int) ([]domain.BucketRow, error) {
	ctx, release := r.acquire(ctx, "query_bucket_stamps")
	defer release()

	rows, err := r.pool.Query(ctx, selectBucketStampsQuery, tr.From, tr.To, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket stamps: %w", err)
	}
	defer rows.Close()

	var results []domain.BucketRow
	for rows.Next() {
		var (
			ts  pgtype.Timestamptz
			row domain.BucketRow
		)
		if err := rows.Scan(&ts, &row.Bucket); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if row.Timestamp, err = instant(ts); err != nil {
			return nil, err
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// InsertEmitter возвращает domain.ErrConflict, если описание уже занято
func (r *PostgresRepository) InsertEmitter(ctx context.Context, e domain.Emitter) error {
	ctx, release := r.acquire(ctx, "insert_emitter")
	defer release()

	var token string
	err := r.pool.QueryRow(ctx, insertEmitterQuery, e.Token, e.Description, e.CreatedAt, e.ExpiresAt).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("emitter %q already exists: %w", e.Description, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert emitter: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteEmitters(ctx context.Context, description string) (int64, error) {
	ctx, release := r.acquire(ctx, "delete_emitters")
	defer release()

	tag, err := r.pool.Exec(ctx, deleteEmittersQuery, description)
	if err != nil {
		return 0, fmt.Errorf("failed to delete emitters: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListEmitters(ctx context.Context) ([]domain.Emitter, error) {
	ctx, release := r.acquire(ctx, "list_emitters")
	defer release()

	rows, err := r.pool.Query(ctx, selectEmittersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query emitters: %w", err)
	}
	defer rows.Close()

	var results []domain.Emitter
	for rows.Next() {
		var e domain.Emitter
		if err := rows.Scan(&e.Token, &e.Description, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// FindEmitterByToken возвращает (nil, nil), если действующего эмиттера с таким токеном нет
func (r *PostgresRepository) FindEmitterByToken(ctx context.Context, token string) (*domain.Emitter, error) {
	ctx, release := r.acquire(ctx, "find_emitter")
	defer release()

	var e domain.Emitter
	err := r.pool.QueryRow(ctx, selectEmitterByTokenQuery, token).Scan(&e.Token, &e.Description, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find emitter: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	ctx, release := r.acquire(ctx, "health_check")
	defer release()

	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
