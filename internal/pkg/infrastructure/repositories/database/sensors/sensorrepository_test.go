package sensors

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"

	"github.com/matryer/is"
)

func TestSaveAndGetSensor(t *testing.T) {
	is, ctx, r := testSetupSensorRepository(t)

	err := r.Save(ctx, createSensor(1, "Centrum"))
	is.NoErr(err)

	err = r.Save(ctx, createSensor(2, "Centrum"))
	is.NoErr(err)

	fromDb, err := r.GetSensorByID(ctx, 1)
	is.NoErr(err)
	is.Equal("sensor-1", fromDb.Name)
	is.Equal("temperature", fromDb.SensorType.Name)
	is.Equal("Centrum", fromDb.Neighborhood.Name)

	fromDb2, err := r.GetSensorByID(ctx, 2)
	is.NoErr(err)

	// both sensors should share type and neighborhood rows
	is.Equal(fromDb.SensorTypeID, fromDb2.SensorTypeID)
	is.Equal(fromDb.NeighborhoodID, fromDb2.NeighborhoodID)
}

func TestGetSensorByIDReturnsNotFound(t *testing.T) {
	is, ctx, r := testSetupSensorRepository(t)

	_, err := r.GetSensorByID(ctx, 42)
	is.Equal(ErrSensorNotFound, err)
}

func TestGetSensorsByNeighborhoodID(t *testing.T) {
	is, ctx, r := testSetupSensorRepository(t)

	r.Save(ctx, createSensor(1, "Centrum"))
	r.Save(ctx, createSensor(2, "Centrum"))
	r.Save(ctx, createSensor(3, "Haga"))

	centrum, err := r.GetSensorByID(ctx, 1)
	is.NoErr(err)

	sensors, err := r.GetSensorsByNeighborhoodID(ctx, centrum.NeighborhoodID)
	is.NoErr(err)
	is.Equal(2, len(sensors))
}

func TestSeed(t *testing.T) {
	is, ctx, r := testSetupSensorRepository(t)

	err := Seed(ctx, r, strings.NewReader(csvMock))
	is.NoErr(err)

	sensors, err := r.GetSensors(ctx)
	is.NoErr(err)
	is.Equal(3, len(sensors))

	neighborhoods, err := r.GetNeighborhoods(ctx)
	is.NoErr(err)
	is.Equal(2, len(neighborhoods))

	// seeding twice must not create duplicates
	err = Seed(ctx, r, strings.NewReader(csvMock))
	is.NoErr(err)

	sensors, err = r.GetSensors(ctx)
	is.NoErr(err)
	is.Equal(3, len(sensors))
}

func testSetupSensorRepository(t *testing.T) (*is.I, context.Context, SensorRepository) {
	is := is.New(t)
	ctx := context.Background()

	r, err := NewSensorRepository(database.NewSQLiteConnector(ctx))
	is.NoErr(err)

	return is, ctx, r
}

func createSensor(n int, neighborhood string) *Sensor {
	return &Sensor{
		Name:   fmt.Sprintf("sensor-%d", n),
		Active: true,
		SensorType: SensorType{
			Name: "temperature",
			Unit: "°C",
		},
		Neighborhood: Neighborhood{
			Name:     neighborhood,
			District: "East",
		},
		Latitude:  57.7,
		Longitude: 11.97,
	}
}

const csvMock string = `name;type;unit;neighborhood;district;lat;lon;active
air-centrum-01;air_quality;µg/m³;Centrum;East;57.70716;11.96679;true
temp-centrum-01;temperature;°C;Centrum;East;57.70584;11.96371;true
sound-haga-01;sound;dB;Haga;West;57.69934;11.96075;true
`
