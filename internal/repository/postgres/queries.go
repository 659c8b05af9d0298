package postgres

// Все выборки по timeseries идут от новых к старым. Диапазон полуоткрытый: [from, to).
// LIMIT NULL в PostgreSQL означает отсутствие ограничения.
const (
	insertPointQuery = `INSERT INTO timeseries (timestamp, bucket, payload) VALUES ($1, $2, $3)`

	selectPointsByBucketQuery = `SELECT timestamp, bucket, payload FROM timeseries
WHERE bucket = $1 AND timestamp >= $2 AND timestamp < $3
ORDER BY timestamp DESC LIMIT $4`

	selectPointsQuery = `SELECT timestamp, bucket, payload FROM timeseries
WHERE timestamp >= $1 AND timestamp < $2
ORDER BY timestamp DESC LIMIT $3`

	deletePointsByBucketQuery = `DELETE FROM timeseries WHERE bucket = $1 AND timestamp >= $2 AND timestamp < $3`

	deletePointsQuery = `DELETE FROM timeseries WHERE timestamp >= $1 AND timestamp < $2`

	selectDistinctBucketsQuery = `SELECT DISTINCT bucket FROM timeseries ORDER BY bucket`

	// $2 - путь внутри payload в виде text[], например {weight} или {climate,co2}
	selectFieldQuery = `SELECT timestamp, (payload #>> $2::text[])::double precision FROM timeseries
WHERE bucket = $1 AND timestamp >= $3 AND timestamp < $4
  AND jsonb_typeof(payload #> $2::text[]) = 'number'
ORDER BY timestamp DESC LIMIT $5`

	selectCoordinatesQuery = `SELECT timestamp,
  (payload #>> '{geometry,coordinates,0}')::double precision,
  (payload #>> '{geometry,coordinates,1}')::double precision
FROM timeseries
WHERE bucket = $1 AND timestamp >= $2 AND timestamp < $3
  AND jsonb_typeof(payload #> '{geometry,coordinates,0}') = 'number'
  AND jsonb_typeof(payload #> '{geometry,coordinates,1}') = 'number'
ORDER BY timestamp DESC LIMIT $4`

	selectBucketStampsQuery = `SELECT timestamp, bucket FROM timeseries
WHERE timestamp >= $1 AND timestamp < $2
ORDER BY timestamp DESC LIMIT $3`

	insertEmitterQuery = `INSERT INTO emitters (token, description, created_at, expires_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (description) DO NOTHING RETURNING token`

	deleteEmittersQuery = `DELETE FROM emitters WHERE description = $1`

	selectEmittersQuery = `SELECT token, description, created_at, expires_at FROM emitters ORDER BY created_at, description`

	selectEmitterByTokenQuery = `SELECT token, description, created_at, expires_at FROM emitters
WHERE token = $1 AND (expires_at IS NULL OR expires_at > now())`
)
