package readings

import (
	"time"
)

// Reading rows are append only and are never updated or deleted in normal
// operation. The auto incrementing primary key doubles as the broadcast
// cursor, so it must stay monotonically increasing.
type Reading struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	SensorID  uint      `gorm:"index;not null" json:"sensorID"`
	Value     float64   `gorm:"not null" json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Validated bool      `json:"validated"`

	CreatedAt time.Time `json:"-"`
}
