package alerting

import (
	"time"

	"gorm.io/gorm"
)

// Threshold is a user defined min/max boundary for one sensor type.
// At most one row may exist per (user, sensor type).
type Threshold struct {
	gorm.Model `json:"-"`

	UserID       string   `gorm:"uniqueIndex:idx_user_sensor_type;not null" json:"userID"`
	SensorTypeID uint     `gorm:"uniqueIndex:idx_user_sensor_type;not null" json:"sensorTypeID"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Active       bool     `json:"active"`
}

// Subscription is a user's opt-in to alerts for one neighborhood.
// Disabling sets Active to false, the row is kept.
type Subscription struct {
	UserID         string `gorm:"primaryKey" json:"userID"`
	NeighborhoodID uint   `gorm:"primaryKey" json:"neighborhoodID"`
	Active         bool   `json:"active"`
	AlertType      string `json:"alertType"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

type Alert struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"-"`

	SensorID           uint    `gorm:"index:idx_sensor_user" json:"sensorID"`
	UserID             string  `gorm:"index:idx_sensor_user" json:"userID"`
	MeasuredValue      float64 `json:"measuredValue"`
	TriggeredThreshold float64 `json:"triggeredThreshold"`
	Severity           string  `json:"severity"`
	Status             string  `json:"status"`
}

type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	AlertID uint      `gorm:"index" json:"alertID"`
	UserID  string    `gorm:"index" json:"userID"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Status  string    `json:"status"`
	SentAt  time.Time `json:"sentAt"`
}
