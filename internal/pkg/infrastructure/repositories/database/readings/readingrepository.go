package readings

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/cityops/iot-city-monitoring/pkg/types"
)

//go:generate moq -rm -out readingrepository_mock.go . ReadingRepository

var ErrRepositoryError = fmt.Errorf("could not fetch data from repository")

type ReadingRepository interface {
	Add(ctx context.Context, reading *Reading) error

	// ReadingsAfter returns up to limit readings with an id greater than
	// cursor, in ascending id order.
	ReadingsAfter(ctx context.Context, cursor uint, limit int) ([]Reading, error)

	// MaxReadingID returns the highest reading id, or 0 for an empty store.
	MaxReadingID(ctx context.Context) (uint, error)

	// LatestBySensor returns the most recent reading for each sensor.
	LatestBySensor(ctx context.Context) ([]Reading, error)

	// QueryReadings returns a page of readings matching the given filters,
	// newest first, together with the total number of matching rows.
	QueryReadings(ctx context.Context, sensorID uint, from, to time.Time, offset, limit int) (types.Collection[Reading], error)
}

type readingRepository struct {
	db *gorm.DB
}

func NewReadingRepository(connect database.ConnectorFunc) (ReadingRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Reading{})
	if err != nil {
		return nil, err
	}

	return &readingRepository{
		db: impl,
	}, nil
}

func (d *readingRepository) Add(ctx context.Context, reading *Reading) error {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	return d.db.Create(reading).Error
}

func (d *readingRepository) ReadingsAfter(ctx context.Context, cursor uint, limit int) ([]Reading, error) {
	var result []Reading

	query := d.db.Where("id > ?", cursor).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&result).Error
	if err != nil {
		return nil, ErrRepositoryError
	}

	return result, nil
}

func (d *readingRepository) MaxReadingID(ctx context.Context) (uint, error) {
	var maxID *uint

	err := d.db.Model(&Reading{}).Select("max(id)").Scan(&maxID).Error
	if err != nil {
		return 0, ErrRepositoryError
	}

	if maxID == nil {
		return 0, nil
	}

	return *maxID, nil
}

func (d *readingRepository) LatestBySensor(ctx context.Context) ([]Reading, error) {
	var result []Reading

	subQuery := d.db.Model(&Reading{}).Select("max(id)").Group("sensor_id")

	err := d.db.Where("id IN (?)", subQuery).Order("sensor_id asc").Find(&result).Error
	if err != nil {
		return nil, ErrRepositoryError
	}

	return result, nil
}

func (d *readingRepository) QueryReadings(ctx context.Context, sensorID uint, from, to time.Time, offset, limit int) (types.Collection[Reading], error) {
	filtered := func() *gorm.DB {
		query := d.db.Model(&Reading{})

		if sensorID > 0 {
			query = query.Where("sensor_id = ?", sensorID)
		}
		if !from.IsZero() {
			query = query.Where("timestamp >= ?", from)
		}
		if !to.IsZero() {
			query = query.Where("timestamp <= ?", to)
		}

		return query
	}

	var totalCount int64
	err := filtered().Count(&totalCount).Error
	if err != nil {
		return types.Collection[Reading]{}, ErrRepositoryError
	}

	query := filtered().Order("timestamp desc").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var result []Reading
	err = query.Find(&result).Error
	if err != nil {
		return types.Collection[Reading]{}, ErrRepositoryError
	}

	return types.Collection[Reading]{
		Data:       result,
		Count:      uint64(len(result)),
		Offset:     uint64(offset),
		Limit:      uint64(limit),
		TotalCount: uint64(totalCount),
	}, nil
}
