package sensors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	"gorm.io/gorm"
)

// Seed loads sensors from a csv file on the form
// name;type;unit;neighborhood;district;lat;lon;active
func Seed(ctx context.Context, repo SensorRepository, reader io.Reader) error {
	r := csv.NewReader(reader)
	r.Comma = ';'

	rows, err := r.ReadAll()
	if err != nil {
		return err
	}

	records, err := getRecordsFromRows(rows)
	if err != nil {
		return err
	}

	log := logging.GetLoggerFromContext(ctx)
	log.Info().Msgf("loaded %d sensors from seed file", len(records))

	impl, ok := repo.(*sensorRepository)
	if !ok {
		return fmt.Errorf("unable to seed this repository implementation")
	}

	for _, record := range records {
		sensor := record.Sensor()

		existing := Sensor{}
		result := impl.db.Where(&Sensor{Name: sensor.Name}).First(&existing)
		if result.RowsAffected > 0 {
			continue
		}
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			log.Error().Err(result.Error).Msgf("unable to check if sensor %s exists", sensor.Name)
			continue
		}

		err := repo.Save(ctx, &sensor)
		if err != nil {
			log.Error().Err(err).Msgf("could not seed sensor %s", sensor.Name)
		}
	}

	return nil
}

type sensorRecord struct {
	name         string
	sensorType   string
	unit         string
	neighborhood string
	district     string
	lat          float64
	lon          float64
	active       bool
}

func (sr sensorRecord) Sensor() Sensor {
	return Sensor{
		Name:   sr.name,
		Active: sr.active,
		SensorType: SensorType{
			Name: sr.sensorType,
			Unit: sr.unit,
		},
		Neighborhood: Neighborhood{
			Name:     sr.neighborhood,
			District: sr.district,
		},
		Latitude:  sr.lat,
		Longitude: sr.lon,
	}
}

func getRecordsFromRows(rows [][]string) ([]sensorRecord, error) {
	records := []sensorRecord{}

	for idx, row := range rows {
		if idx == 0 {
			// Skip the CSV header
			continue
		}

		if len(row) < 8 {
			return nil, fmt.Errorf("too few columns on line %d in sensors seed file", idx+1)
		}

		lat, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latitude for sensor %s: %s", row[0], err.Error())
		}

		lon, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse longitude for sensor %s: %s", row[0], err.Error())
		}

		active, err := strconv.ParseBool(row[7])
		if err != nil {
			return nil, fmt.Errorf("failed to parse active for sensor %s: %s", row[0], err.Error())
		}

		records = append(records, sensorRecord{
			name:         row[0],
			sensorType:   row[1],
			unit:         row[2],
			neighborhood: row[3],
			district:     row[4],
			lat:          lat,
			lon:          lon,
			active:       active,
		})
	}

	return records, nil
}
