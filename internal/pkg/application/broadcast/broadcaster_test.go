package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestRegisterSendsConnectionEventFirst(t *testing.T) {
	is, b, _ := testSetup(t)

	_, channel, err := b.Register(context.Background())
	is.NoErr(err)

	event := nextEvent(t, channel)
	is.Equal(event.Type, EventTypeConnection)
}

func TestRegisterSendsLatestReadingPerSensor(t *testing.T) {
	is, b, repo := testSetup(t)

	addReading(t, repo, 1, 10)
	addReading(t, repo, 1, 11)
	addReading(t, repo, 2, 20)

	_, channel, err := b.Register(context.Background())
	is.NoErr(err)

	is.Equal(nextEvent(t, channel).Type, EventTypeConnection)

	snapshot := nextEvent(t, channel)
	is.Equal(snapshot.Type, EventTypeSensorData)
	is.Equal(len(snapshot.Readings), 2)
	is.Equal(snapshot.Readings[0].Value, 11.0)
	is.Equal(snapshot.Readings[1].Value, 20.0)
}

func TestLateJoinerOnlyReceivesNewReadings(t *testing.T) {
	is, b, repo := testSetup(t)

	addReading(t, repo, 1, 10)
	addReading(t, repo, 1, 11)

	_, channel, err := b.Register(context.Background())
	is.NoErr(err)

	is.Equal(nextEvent(t, channel).Type, EventTypeConnection)
	is.Equal(nextEvent(t, channel).Readings[0].Value, 11.0)

	addReading(t, repo, 1, 12)

	event := nextEvent(t, channel)
	is.Equal(event.Type, EventTypeSensorData)
	is.Equal(len(event.Readings), 1)
	is.Equal(event.Readings[0].Value, 12.0)
}

func TestCursorAdvancesAndBatchIsPublished(t *testing.T) {
	is, b, repo := testSetup(t)

	_, channel, err := b.Register(context.Background())
	is.NoErr(err)
	is.Equal(nextEvent(t, channel).Type, EventTypeConnection)

	addReading(t, repo, 1, 10)
	addReading(t, repo, 2, 20)

	// the poller may deliver the two readings in one frame or two,
	// depending on where the ticks land
	values := []float64{}
	for len(values) < 2 {
		event := nextEvent(t, channel)
		is.Equal(event.Type, EventTypeSensorData)
		for _, r := range event.Readings {
			values = append(values, r.Value)
		}
	}
	is.Equal(values, []float64{10.0, 20.0})

	status := b.Status()
	is.Equal(status.Cursor, uint(2))
	is.Equal(status.Polling, true)
}

func TestHeartbeatCarriesChannelCount(t *testing.T) {
	is, b, _ := testSetup(t)

	_, channel, err := b.Register(context.Background())
	is.NoErr(err)
	is.Equal(nextEvent(t, channel).Type, EventTypeConnection)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-channel:
			if event.Type == EventTypeHeartbeat {
				is.Equal(event.ActiveChannels, 1)
				return
			}
		case <-deadline:
			t.Fatal("no heartbeat received")
		}
	}
}

func TestUnregisterLastChannelStopsPolling(t *testing.T) {
	is, b, _ := testSetup(t)

	id, channel, err := b.Register(context.Background())
	is.NoErr(err)
	is.Equal(b.ChannelCount(), 1)
	is.Equal(b.Status().Polling, true)

	b.Unregister(context.Background(), id)

	is.Equal(b.ChannelCount(), 0)
	is.Equal(b.Status().Polling, false)

	_, open := <-channel
	is.Equal(open, false)
}

func TestRegisterDeliversConnectionEventBeforePolledData(t *testing.T) {
	is, b, repo := testSetup(t)

	// keep the poller running while channels come and go
	_, keeper, err := b.Register(context.Background())
	is.NoErr(err)
	is.Equal(nextEvent(t, keeper).Type, EventTypeConnection)

	for i := 0; i < 20; i++ {
		addReading(t, repo, 1, float64(10+i))

		id, channel, err := b.Register(context.Background())
		is.NoErr(err)
		is.Equal(nextEvent(t, channel).Type, EventTypeConnection)

		b.Unregister(context.Background(), id)
	}
}

func TestBroadcastReachesAllChannels(t *testing.T) {
	is, b, _ := testSetup(t)

	_, first, err := b.Register(context.Background())
	is.NoErr(err)
	_, second, err := b.Register(context.Background())
	is.NoErr(err)

	is.Equal(nextEvent(t, first).Type, EventTypeConnection)
	is.Equal(nextEvent(t, second).Type, EventTypeConnection)

	b.Broadcast(context.Background(), NewConnectionEvent("maintenance window at 22:00"))

	is.Equal(nextEvent(t, first).Message, "maintenance window at 22:00")
	is.Equal(nextEvent(t, second).Message, "maintenance window at 22:00")
}

func addReading(t *testing.T, repo readings.ReadingRepository, sensorID uint, value float64) {
	err := repo.Add(context.Background(), &readings.Reading{SensorID: sensorID, Value: value, Unit: "µg/m³"})
	if err != nil {
		t.Fatal(err)
	}
}

// nextEvent returns the next non heartbeat event, since heartbeats can
// interleave with the events the tests are asserting on.
func nextEvent(t *testing.T, channel <-chan Event) Event {
	deadline := time.After(2 * time.Second)

	for {
		select {
		case event := <-channel:
			if event.Type == EventTypeHeartbeat {
				continue
			}
			return event
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func testSetup(t *testing.T) (*is.I, Broadcaster, readings.ReadingRepository) {
	is := is.New(t)
	ctx := context.Background()

	conn := database.NewSQLiteConnector(ctx)

	repo, err := readings.NewReadingRepository(conn)
	is.NoErr(err)

	m := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			return nil
		},
	}

	b := New(zerolog.Nop(), repo, m,
		WithPollInterval(10*time.Millisecond),
		WithHeartbeatInterval(50*time.Millisecond),
		WithBatchSize(100),
	)

	return is, b, repo
}
