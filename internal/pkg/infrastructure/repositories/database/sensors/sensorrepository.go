package sensors

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"
)

//go:generate moq -rm -out sensorrepository_mock.go . SensorRepository

var ErrSensorNotFound = fmt.Errorf("sensor not found")
var ErrRepositoryError = fmt.Errorf("could not fetch data from repository")

type SensorRepository interface {
	GetSensors(ctx context.Context) ([]Sensor, error)
	GetSensorByID(ctx context.Context, sensorID uint) (Sensor, error)
	GetSensorsByNeighborhoodID(ctx context.Context, neighborhoodID uint) ([]Sensor, error)

	GetSensorTypes(ctx context.Context) ([]SensorType, error)
	GetNeighborhoods(ctx context.Context) ([]Neighborhood, error)

	Save(ctx context.Context, sensor *Sensor) error
}

type sensorRepository struct {
	db *gorm.DB
}

func NewSensorRepository(connect database.ConnectorFunc) (SensorRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&SensorType{}, &Neighborhood{}, &Sensor{})
	if err != nil {
		return nil, err
	}

	return &sensorRepository{
		db: impl,
	}, nil
}

func getSensorsQuery(db *gorm.DB) *gorm.DB {
	return db.Joins("SensorType").Joins("Neighborhood")
}

func (d *sensorRepository) GetSensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor

	result := getSensorsQuery(d.db).Find(&sensors)

	return sensors, result.Error
}

func (d *sensorRepository) GetSensorByID(ctx context.Context, sensorID uint) (Sensor, error) {
	logger := logging.GetLoggerFromContext(ctx)

	var sensor = Sensor{}

	result := getSensorsQuery(d.db).Where("sensors.id = ?", sensorID).First(&sensor)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Sensor{}, ErrSensorNotFound
		}

		logger.Error().Err(result.Error).Msg("gorm error")

		return Sensor{}, ErrRepositoryError
	}

	return sensor, nil
}

func (d *sensorRepository) GetSensorsByNeighborhoodID(ctx context.Context, neighborhoodID uint) ([]Sensor, error) {
	var sensors []Sensor

	result := getSensorsQuery(d.db).Where("sensors.neighborhood_id = ?", neighborhoodID).Find(&sensors)

	return sensors, result.Error
}

func (d *sensorRepository) GetSensorTypes(ctx context.Context) ([]SensorType, error) {
	var sensorTypes []SensorType

	result := d.db.Find(&sensorTypes)

	return sensorTypes, result.Error
}

func (d *sensorRepository) GetNeighborhoods(ctx context.Context) ([]Neighborhood, error) {
	var neighborhoods []Neighborhood

	result := d.db.Find(&neighborhoods)

	return neighborhoods, result.Error
}

func (d *sensorRepository) Save(ctx context.Context, sensor *Sensor) error {
	return d.db.Save(sensor).Error
}
