package api

import (
	adb "github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/sensors"
	"github.com/cityops/iot-city-monitoring/pkg/types"
)

const (
	ActionStatus       = "status"
	ActionBroadcast    = "broadcast"
	ActionSensorUpdate = "sensor-update"
)

type adminEventRequest struct {
	Action   string `json:"action"`
	Message  string `json:"message,omitempty"`
	SensorID uint   `json:"sensorID,omitempty"`
}

type thresholdRequest struct {
	SensorTypeID uint     `json:"sensorTypeID"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Active       bool     `json:"active"`
}

type subscriptionRequest struct {
	NeighborhoodID uint   `json:"neighborhoodID"`
	Active         bool   `json:"active"`
	AlertType      string `json:"alertType,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func mapSensor(s sensors.Sensor) types.Sensor {
	return types.Sensor{
		ID:             s.ID,
		Name:           s.Name,
		SensorTypeID:   s.SensorTypeID,
		NeighborhoodID: s.NeighborhoodID,
		Location: types.Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		},
		Active: s.Active,
	}
}

func mapSensorType(s sensors.SensorType) types.SensorType {
	return types.SensorType{
		ID:   s.ID,
		Name: s.Name,
		Unit: s.Unit,
	}
}

func mapNeighborhood(n sensors.Neighborhood) types.Neighborhood {
	return types.Neighborhood{
		ID:       n.ID,
		Name:     n.Name,
		District: n.District,
	}
}

func mapReading(r readings.Reading) types.Reading {
	return types.Reading{
		ID:        r.ID,
		SensorID:  r.SensorID,
		Value:     r.Value,
		Unit:      r.Unit,
		Timestamp: r.Timestamp,
		Validated: r.Validated,
	}
}

func mapThreshold(t adb.Threshold) types.Threshold {
	return types.Threshold{
		ID:           t.ID,
		UserID:       t.UserID,
		SensorTypeID: t.SensorTypeID,
		Min:          t.Min,
		Max:          t.Max,
		Active:       t.Active,
	}
}
