package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viot-io/viot/internal/database"
	"github.com/viot-io/viot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregateFn names a server-side aggregation over a time bucket.
type AggregateFn string

const (
	AggregateNone  AggregateFn = ""
	AggregateAvg   AggregateFn = "avg"
	AggregateSum   AggregateFn = "sum"
	AggregateMin   AggregateFn = "min"
	AggregateMax   AggregateFn = "max"
	AggregateCount AggregateFn = "count"
)

type IntervalType string

const (
	IntervalSecond IntervalType = "second"
	IntervalMinute IntervalType = "minute"
	IntervalHour   IntervalType = "hour"
	IntervalDay    IntervalType = "day"
)

// RangeAggregation describes the optional bucketing of a range query.
// A zero Fn means raw points.
type RangeAggregation struct {
	Fn           AggregateFn
	IntervalType IntervalType
	Interval     int
}

// BucketSeconds validates the aggregation and returns the bucket width.
func (a RangeAggregation) BucketSeconds() (int64, error) {
	switch a.Fn {
	case AggregateAvg, AggregateSum, AggregateMin, AggregateMax, AggregateCount:
	default:
		return 0, fmt.Errorf("unknown aggregate function %q", a.Fn)
	}
	if a.Interval <= 0 {
		return 0, fmt.Errorf("aggregation interval must be positive, got %d", a.Interval)
	}
	var unit int64
	switch a.IntervalType {
	case IntervalSecond:
		unit = 1
	case IntervalMinute:
		unit = 60
	case IntervalHour:
		unit = 3600
	case IntervalDay:
		unit = 86400
	default:
		return 0, fmt.Errorf("unknown interval type %q", a.IntervalType)
	}
	return unit * int64(a.Interval), nil
}

// TimeseriesStore owns the append-only device_data table. The dialect
// is captured at construction time because bucketed range queries need
// dialect-specific epoch arithmetic.
type TimeseriesStore struct {
	db      *gorm.DB
	dialect database.Dialect
}

func NewTimeseriesStore(db *gorm.DB, dialect database.Dialect) *TimeseriesStore {
	return &TimeseriesStore{db: db, dialect: dialect}
}

func (s *TimeseriesStore) WithTx(tx *gorm.DB) *TimeseriesStore {
	return &TimeseriesStore{db: tx, dialect: s.dialect}
}

func (s *TimeseriesStore) FindAllKeys(ctx context.Context, deviceID uuid.UUID) ([]string, error) {
	keys := []string{}
	result := s.db.WithContext(ctx).
		Model(&models.DeviceData{}).
		Distinct("key").
		Where("device_id = ?", deviceID).
		Order("key").
		Pluck("key", &keys)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list timeseries keys: %w", result.Error)
	}
	return keys, nil
}

// FindLatestByKeys returns the max-ts point per requested key. Keys
// with no points are omitted rather than reported as nulls.
func (s *TimeseriesStore) FindLatestByKeys(ctx context.Context, deviceID uuid.UUID, keys []string) ([]models.DataPoint, error) {
	points := []models.DataPoint{}
	if len(keys) == 0 {
		return points, nil
	}

	latest := s.db.Model(&models.DeviceData{}).
		Select("key, MAX(ts) AS ts").
		Where("device_id = ? AND key IN ?", deviceID, keys).
		Group("key")

	var rows []models.DeviceData
	result := s.db.WithContext(ctx).
		Model(&models.DeviceData{}).
		Joins("JOIN (?) AS latest ON device_data.key = latest.key AND device_data.ts = latest.ts", latest).
		Where("device_data.device_id = ?", deviceID).
		Order("device_data.key").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch latest timeseries points: %w", result.Error)
	}

	for _, row := range rows {
		points = append(points, models.DataPoint{
			Key:   row.Key,
			Value: row.Value(),
			Ts:    row.Ts,
		})
	}
	return points, nil
}

// FindRangeByKeys returns points in [from, to] per key, ascending by
// time. With agg.Fn set the points are bucketed server-side; empty
// buckets are omitted and non-numeric points fall out of the aggregate
// the way SQL aggregates treat NULL.
func (s *TimeseriesStore) FindRangeByKeys(ctx context.Context, deviceID uuid.UUID, keys []string, from, to time.Time, agg RangeAggregation) (map[string][]models.TimeValue, error) {
	series := map[string][]models.TimeValue{}
	if len(keys) == 0 {
		return series, nil
	}
	if agg.Fn == AggregateNone {
		return s.findRawRange(ctx, deviceID, keys, from, to)
	}
	return s.findAggregatedRange(ctx, deviceID, keys, from, to, agg)
}

func (s *TimeseriesStore) findRawRange(ctx context.Context, deviceID uuid.UUID, keys []string, from, to time.Time) (map[string][]models.TimeValue, error) {
	var rows []models.DeviceData
	result := s.db.WithContext(ctx).
		Where("device_id = ? AND key IN ? AND ts >= ? AND ts <= ?", deviceID, keys, from, to).
		Order("key").Order("ts").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to fetch timeseries range: %w", result.Error)
	}

	series := map[string][]models.TimeValue{}
	for _, row := range rows {
		series[row.Key] = append(series[row.Key], models.TimeValue{
			Ts:    row.Ts,
			Value: row.Value(),
		})
	}
	return series, nil
}

func (s *TimeseriesStore) findAggregatedRange(ctx context.Context, deviceID uuid.UUID, keys []string, from, to time.Time, agg RangeAggregation) (map[string][]models.TimeValue, error) {
	bucket, err := agg.BucketSeconds()
	if err != nil {
		return nil, err
	}

	// Buckets are aligned to the unix epoch so the same query over the
	// same data always yields the same bucket boundaries.
	var bucketExpr string
	switch s.dialect {
	case database.DialectSqlLite:
		bucketExpr = fmt.Sprintf("(strftime('%%s', ts) / %d) * %d", bucket, bucket)
	default:
		bucketExpr = fmt.Sprintf("cast(floor(extract(epoch from ts) / %d) * %d as bigint)", bucket, bucket)
	}

	var valueExpr string
	if agg.Fn == AggregateCount {
		valueExpr = "count(*)"
	} else {
		valueExpr = fmt.Sprintf("%s(coalesce(double_v, long_v))", agg.Fn)
	}

	type bucketRow struct {
		Key    string
		Epoch  int64
		Number *float64
	}
	var rows []bucketRow
	result := s.db.WithContext(ctx).
		Model(&models.DeviceData{}).
		Select(fmt.Sprintf("key, %s AS epoch, %s AS number", bucketExpr, valueExpr)).
		Where("device_id = ? AND key IN ? AND ts >= ? AND ts <= ?", deviceID, keys, from, to).
		Group("key").Group("epoch").
		Order("key").Order("epoch").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to aggregate timeseries range: %w", result.Error)
	}

	series := map[string][]models.TimeValue{}
	for _, row := range rows {
		var value models.Value
		switch {
		case row.Number == nil:
			// Aggregate over a bucket with no numeric points.
			continue
		case agg.Fn == AggregateCount:
			value = models.IntValue(int64(*row.Number))
		default:
			value = models.DoubleValue(*row.Number)
		}
		series[row.Key] = append(series[row.Key], models.TimeValue{
			Ts:    time.Unix(row.Epoch, 0).UTC(),
			Value: value,
		})
	}
	return series, nil
}

// Insert appends one point. A point already present at (device, key,
// ts) is left untouched, re-delivered messages are not an error.
func (s *TimeseriesStore) Insert(ctx context.Context, deviceID uuid.UUID, key string, value models.Value, ts time.Time) error {
	if value.IsNull() {
		return models.ErrInvalidValueEncoding
	}

	point := models.DeviceData{
		DeviceID: deviceID,
		Key:      key,
		Ts:       ts.UTC(),
	}
	point.SetValue(value)

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&point)
	if result.Error != nil {
		return fmt.Errorf("failed to insert timeseries point %q: %w", key, result.Error)
	}
	return nil
}
