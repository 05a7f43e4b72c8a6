package types

import (
	"time"
)

type SensorType struct {
	ID   uint   `json:"id"`
	Name string `json:"name" yaml:"name"`
	Unit string `json:"unit" yaml:"unit"`
}

type Neighborhood struct {
	ID       uint   `json:"id"`
	Name     string `json:"name" yaml:"name"`
	District string `json:"district,omitempty" yaml:"district"`
}

type Sensor struct {
	ID             uint     `json:"id"`
	Name           string   `json:"name" yaml:"name"`
	SensorTypeID   uint     `json:"sensorTypeID" yaml:"sensorTypeID"`
	NeighborhoodID uint     `json:"neighborhoodID" yaml:"neighborhoodID"`
	Location       Location `json:"location" yaml:"location"`
	Active         bool     `json:"active" yaml:"active"`
}

type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

type Reading struct {
	ID        uint      `json:"id"`
	SensorID  uint      `json:"sensorID"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Validated bool      `json:"validated"`
}

type Threshold struct {
	ID           uint     `json:"id"`
	UserID       string   `json:"userID"`
	SensorTypeID uint     `json:"sensorTypeID"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Active       bool     `json:"active"`
}

const (
	AlertTypeAll          = "ALL"
	AlertTypeThreshold    = "THRESHOLD"
	AlertTypeCriticalOnly = "CRITICAL_ONLY"
)

type Subscription struct {
	UserID         string `json:"userID"`
	NeighborhoodID uint   `json:"neighborhoodID"`
	Active         bool   `json:"active"`
	AlertType      string `json:"alertType"`
}

const (
	AlertSeverityLow      = "LOW"
	AlertSeverityMedium   = "MEDIUM"
	AlertSeverityHigh     = "HIGH"
	AlertSeverityCritical = "CRITICAL"
)

const (
	AlertStatusOpen       = "OPEN"
	AlertStatusInProgress = "IN_PROGRESS"
	AlertStatusResolved   = "RESOLVED"
	AlertStatusClosed     = "CLOSED"
)

type Alert struct {
	ID                 uint      `json:"id"`
	SensorID           uint      `json:"sensorID"`
	UserID             string    `json:"userID"`
	MeasuredValue      float64   `json:"measuredValue"`
	TriggeredThreshold float64   `json:"triggeredThreshold"`
	Severity           string    `json:"severity"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
}

const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusRead    = "READ"
)

type Notification struct {
	ID      uint      `json:"id"`
	AlertID uint      `json:"alertID"`
	UserID  string    `json:"userID"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Status  string    `json:"status"`
	SentAt  time.Time `json:"sentAt"`
}

type Collection[T any] struct {
	Data       []T    `json:"data"`
	Count      uint64 `json:"count"`
	Offset     uint64 `json:"offset"`
	Limit      uint64 `json:"limit"`
	TotalCount uint64 `json:"totalCount"`
}
