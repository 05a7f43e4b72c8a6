package readings

import (
	"context"
	"testing"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"

	"github.com/matryer/is"
)

func TestAddAssignsIncreasingIDs(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	first := createReading(1, 21.5)
	second := createReading(1, 22.0)

	is.NoErr(r.Add(ctx, first))
	is.NoErr(r.Add(ctx, second))

	is.True(second.ID > first.ID)
}

func TestMaxReadingIDOnEmptyStore(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	maxID, err := r.MaxReadingID(ctx)
	is.NoErr(err)
	is.Equal(uint(0), maxID)
}

func TestReadingsAfterReturnsAscendingOrder(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	for i := 0; i < 5; i++ {
		is.NoErr(r.Add(ctx, createReading(1, float64(20+i))))
	}

	maxID, err := r.MaxReadingID(ctx)
	is.NoErr(err)

	result, err := r.ReadingsAfter(ctx, maxID-3, 0)
	is.NoErr(err)
	is.Equal(3, len(result))

	for i := 1; i < len(result); i++ {
		is.True(result[i].ID > result[i-1].ID)
	}
}

func TestReadingsAfterRespectsLimit(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	for i := 0; i < 10; i++ {
		is.NoErr(r.Add(ctx, createReading(1, float64(i))))
	}

	result, err := r.ReadingsAfter(ctx, 0, 4)
	is.NoErr(err)
	is.Equal(4, len(result))
	is.Equal(uint(1), result[0].ID)
}

func TestLatestBySensor(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	r.Add(ctx, createReading(1, 20.0))
	r.Add(ctx, createReading(2, 55.0))
	r.Add(ctx, createReading(1, 21.0))
	r.Add(ctx, createReading(2, 60.0))

	latest, err := r.LatestBySensor(ctx)
	is.NoErr(err)
	is.Equal(2, len(latest))
	is.Equal(21.0, latest[0].Value)
	is.Equal(60.0, latest[1].Value)
}

func TestQueryReadingsBySensorAndRange(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	now := time.Now().UTC()

	r.Add(ctx, &Reading{SensorID: 1, Value: 20.0, Unit: "°C", Timestamp: now.Add(-2 * time.Hour)})
	r.Add(ctx, &Reading{SensorID: 1, Value: 21.0, Unit: "°C", Timestamp: now.Add(-1 * time.Hour)})
	r.Add(ctx, &Reading{SensorID: 2, Value: 55.0, Unit: "dB", Timestamp: now.Add(-1 * time.Hour)})

	result, err := r.QueryReadings(ctx, 1, now.Add(-90*time.Minute), now, 0, 0)
	is.NoErr(err)
	is.Equal(1, len(result.Data))
	is.Equal(21.0, result.Data[0].Value)
	is.Equal(uint64(1), result.TotalCount)
}

func TestQueryReadingsPaginates(t *testing.T) {
	is, ctx, r := testSetupReadingRepository(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		r.Add(ctx, &Reading{SensorID: 1, Value: float64(i), Unit: "°C", Timestamp: now.Add(time.Duration(i) * time.Minute)})
	}

	page, err := r.QueryReadings(ctx, 1, time.Time{}, time.Time{}, 1, 2)
	is.NoErr(err)
	is.Equal(uint64(2), page.Count)
	is.Equal(uint64(1), page.Offset)
	is.Equal(uint64(2), page.Limit)
	is.Equal(uint64(5), page.TotalCount)

	// newest first, offset 1 skips the newest
	is.Equal(3.0, page.Data[0].Value)
	is.Equal(2.0, page.Data[1].Value)
}

func testSetupReadingRepository(t *testing.T) (*is.I, context.Context, ReadingRepository) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewReadingRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, r
}

func createReading(sensorID uint, value float64) *Reading {
	return &Reading{
		SensorID:  sensorID,
		Value:     value,
		Unit:      "°C",
		Timestamp: time.Now().UTC(),
		Validated: true,
	}
}
