package broadcast

import (
	"time"

	"github.com/cityops/iot-city-monitoring/pkg/types"
)

const (
	EventTypeConnection   = "connection"
	EventTypeSensorData   = "sensor-data"
	EventTypeSensorUpdate = "sensor-update"
	EventTypeHeartbeat    = "heartbeat"
)

// Event is a single message on a subscriber channel. The Type field decides
// which of the optional fields are set: sensor-data carries a batch of
// readings, sensor-update a single reading.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Message        string          `json:"message,omitempty"`
	Readings       []types.Reading `json:"readings,omitempty"`
	Reading        *types.Reading  `json:"reading,omitempty"`
	ActiveChannels int             `json:"activeChannels,omitempty"`
}

func NewConnectionEvent(message string) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}

func NewSensorDataEvent(readings []types.Reading) Event {
	return Event{
		Type:      EventTypeSensorData,
		Timestamp: time.Now().UTC(),
		Readings:  readings,
	}
}

func NewSensorUpdateEvent(reading types.Reading, message string) Event {
	return Event{
		Type:      EventTypeSensorUpdate,
		Timestamp: time.Now().UTC(),
		Reading:   &reading,
		Message:   message,
	}
}

func NewHeartbeatEvent(activeChannels int) Event {
	return Event{
		Type:           EventTypeHeartbeat,
		Timestamp:      time.Now().UTC(),
		ActiveChannels: activeChannels,
	}
}
