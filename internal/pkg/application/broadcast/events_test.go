package broadcast

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cityops/iot-city-monitoring/pkg/types"

	"github.com/matryer/is"
)

func TestSensorDataFrameCarriesReadingsArray(t *testing.T) {
	is := is.New(t)

	body, err := json.Marshal(NewSensorDataEvent([]types.Reading{{ID: 1, SensorID: 1, Value: 42.0}}))
	is.NoErr(err)

	is.True(strings.Contains(string(body), `"type":"sensor-data"`))
	is.True(strings.Contains(string(body), `"readings":[`))
	is.True(!strings.Contains(string(body), `"reading":{`))
}

func TestSensorUpdateFrameCarriesSingleReading(t *testing.T) {
	is := is.New(t)

	body, err := json.Marshal(NewSensorUpdateEvent(types.Reading{ID: 1, SensorID: 1, Value: 42.0}, "reading validated"))
	is.NoErr(err)

	is.True(strings.Contains(string(body), `"type":"sensor-update"`))
	is.True(strings.Contains(string(body), `"reading":{`))
	is.True(!strings.Contains(string(body), `"readings"`))
}

func TestHeartbeatFrameCarriesChannelCount(t *testing.T) {
	is := is.New(t)

	body, err := json.Marshal(NewHeartbeatEvent(3))
	is.NoErr(err)

	is.True(strings.Contains(string(body), `"type":"heartbeat"`))
	is.True(strings.Contains(string(body), `"activeChannels":3`))
}
