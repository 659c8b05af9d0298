package domain

import (
	"encoding/json"
	"time"
)

// NoLimit снимает ограничение на количество строк в выборке
const NoLimit = -1

// DefaultLimit применяется, если клиент не передал limit
const DefaultLimit = 100

var (
	// MinInstant и MaxInstant задают границы представимого диапазона времени
	MinInstant = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxInstant = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// DataPoint представляет одну запись временного ряда
type DataPoint struct {
	Timestamp string          `json:"timestamp"`
	Bucket    string          `json:"bucket"`
	Payload   json.RawMessage `json:"payload"`
}

// StoredPoint строка таблицы timeseries в том виде, в каком её отдаёт хранилище
type StoredPoint struct {
	Timestamp time.Time
	Bucket    string
	Payload   json.RawMessage
}

// NewPoint точка для записи в хранилище
type NewPoint struct {
	Timestamp time.Time
	Bucket    string
	Payload   json.RawMessage
}

type TimeRange struct {
	From time.Time
	To   time.Time
}

// FullRange покрывает весь представимый диапазон
func FullRange() TimeRange {
	return TimeRange{From: MinInstant, To: MaxInstant}
}

// QueryFilter описывает ограниченную выборку из хранилища.
// Limit ограничивает число строк в запросе, Sample - число строк в ответе клиенту.
type QueryFilter struct {
	Range  TimeRange
	Bucket string
	Limit  int
	Sample *int
}

// FieldValue числовое значение, извлечённое из payload
type FieldValue struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// BucketStamp пара (timestamp, bucket) для обзора активности источников
type BucketStamp struct {
	Timestamp string `json:"timestamp"`
	Bucket    string `json:"bucket"`
}

type WeightSample struct {
	Timestamp time.Time `json:"timestamp"`
	Weight    float64   `json:"weight"`
}

// WeightReport результат аналитики по весу
type WeightReport struct {
	Weights              []WeightSample `json:"weights"`
	SmoothedWeights      []WeightSample `json:"smoothed_weights"`
	Count                int            `json:"count"`
	ChangeWeekOverWeek   *float64       `json:"change_week_over_week"`
	ChangeMonthOverMonth *float64       `json:"change_month_over_month"`
}

type Emitter struct {
	Description string     `json:"description"`
	Token       string     `json:"token"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// GPSGeometry геометрия точки в формате GeoJSON, coordinates = [lon, lat]
type GPSGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type GPSLocation struct {
	Type       string          `json:"type"`
	Geometry   GPSGeometry     `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

type GPSCoordinate struct {
	Timestamp string  `json:"timestamp"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// FieldRow числовое поле payload в том виде, в каком его отдаёт хранилище
type FieldRow struct {
	Timestamp time.Time
	Value     float64
}

type CoordinateRow struct {
	Timestamp time.Time
	Longitude float64
	Latitude  float64
}

type BucketRow struct {
	Timestamp time.Time
	Bucket    string
}
