package alerting

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"
	db "github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/sensors"
	"github.com/cityops/iot-city-monitoring/pkg/types"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestEvaluateCreatesAlertAndNotification(t *testing.T) {
	is, svc, alertRepo, _, published := testSetup(t, threshold("user-1", nil, f(100)), subscription("user-1", types.AlertTypeAll))

	err := svc.Evaluate(context.Background(), reading(151))
	is.NoErr(err)

	alerts, err := alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 1)
	is.Equal(alerts[0].Severity, types.AlertSeverityCritical)
	is.Equal(alerts[0].Status, types.AlertStatusOpen)
	is.Equal(alerts[0].MeasuredValue, 151.0)
	is.Equal(alerts[0].TriggeredThreshold, 100.0)

	notifications, err := alertRepo.GetNotificationsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(notifications), 1)
	is.Equal(notifications[0].Status, types.NotificationStatusPending)
	is.Equal(notifications[0].AlertID, alerts[0].ID)

	is.Equal(len(*published), 2)
	is.Equal((*published)[0].TopicName(), "alert.created")
	is.Equal((*published)[1].TopicName(), "notification.created")
}

func TestEvaluateValueOnBoundaryRaisesNothing(t *testing.T) {
	is, svc, alertRepo, _, published := testSetup(t, threshold("user-1", f(10), f(100)), subscription("user-1", types.AlertTypeAll))

	err := svc.Evaluate(context.Background(), reading(100))
	is.NoErr(err)
	err = svc.Evaluate(context.Background(), reading(10))
	is.NoErr(err)

	alerts, err := alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 0)
	is.Equal(len(*published), 0)
}

func TestEvaluateSuppressesDuplicateWithinWindow(t *testing.T) {
	is, svc, alertRepo, _, _ := testSetup(t, threshold("user-1", nil, f(100)), subscription("user-1", types.AlertTypeAll))

	err := svc.Evaluate(context.Background(), reading(120))
	is.NoErr(err)
	err = svc.Evaluate(context.Background(), reading(130))
	is.NoErr(err)

	alerts, err := alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 1)
}

func TestEvaluateWithoutSubscribersWritesNothing(t *testing.T) {
	is, svc, alertRepo, _, published := testSetup(t, threshold("user-1", nil, f(100)))

	err := svc.Evaluate(context.Background(), reading(151))
	is.NoErr(err)

	alerts, err := alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 0)
	is.Equal(len(*published), 0)
}

func TestEvaluateCriticalOnlySubscriptionSkipsLowerSeverities(t *testing.T) {
	is, svc, alertRepo, _, _ := testSetup(t, threshold("user-1", nil, f(100)), subscription("user-1", types.AlertTypeCriticalOnly))

	err := svc.Evaluate(context.Background(), reading(120))
	is.NoErr(err)

	alerts, err := alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 0)

	err = svc.Evaluate(context.Background(), reading(151))
	is.NoErr(err)

	alerts, err = alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 1)
	is.Equal(alerts[0].Severity, types.AlertSeverityCritical)
}

func TestReadingBatchHandler(t *testing.T) {
	is, svc, alertRepo, _, _ := testSetup(t, threshold("user-1", nil, f(100)), subscription("user-1", types.AlertTypeAll))

	handler := NewReadingBatchHandler(svc)

	r := reading(151)
	batch := types.ReadingBatch{
		Readings: []types.Reading{{
			ID:        r.ID,
			SensorID:  r.SensorID,
			Value:     r.Value,
			Unit:      r.Unit,
			Timestamp: r.Timestamp,
		}},
		MaxID:     r.ID,
		Timestamp: time.Now().UTC(),
	}

	b, _ := json.Marshal(batch)
	handler(context.Background(), amqp.Delivery{Body: b, RoutingKey: batch.TopicName()}, zerolog.Nop())

	alerts, err := alertRepo.GetAlertsByUserID(context.Background(), "user-1")
	is.NoErr(err)
	is.Equal(len(alerts), 1)
}

func TestSetAlertStatusRejectsUnknownStatus(t *testing.T) {
	is, svc, _, _, _ := testSetup(t)

	err := svc.SetAlertStatus(context.Background(), 1, "BROKEN")
	is.True(err == ErrInvalidStatus)
}

func reading(value float64) readings.Reading {
	return readings.Reading{
		ID:        1,
		SensorID:  1,
		Value:     value,
		Unit:      "µg/m³",
		Timestamp: time.Now().UTC(),
	}
}

func threshold(userID string, min, max *float64) db.Threshold {
	return db.Threshold{
		UserID:       userID,
		SensorTypeID: 1,
		Min:          min,
		Max:          max,
		Active:       true,
	}
}

func subscription(userID, alertType string) db.Subscription {
	return db.Subscription{
		UserID:         userID,
		NeighborhoodID: 1,
		Active:         true,
		AlertType:      alertType,
	}
}

func f(v float64) *float64 {
	return &v
}

func testSetup(t *testing.T, fixtures ...any) (*is.I, AlertService, db.AlertRepository, sensors.SensorRepository, *[]messaging.TopicMessage) {
	is := is.New(t)
	ctx := context.Background()

	conn := database.NewSQLiteConnector(ctx)

	alertRepo, err := db.NewAlertRepository(conn)
	is.NoErr(err)
	sensorRepo, err := sensors.NewSensorRepository(conn)
	is.NoErr(err)

	err = sensorRepo.Save(ctx, &sensors.Sensor{
		Name:         "air-quality-01",
		Active:       true,
		SensorType:   sensors.SensorType{Name: "air_quality", Unit: "µg/m³"},
		Neighborhood: sensors.Neighborhood{Name: "Old Town", District: "Central"},
	})
	is.NoErr(err)

	for _, fixture := range fixtures {
		switch fx := fixture.(type) {
		case db.Threshold:
			is.NoErr(alertRepo.SaveThreshold(ctx, &fx))
		case db.Subscription:
			is.NoErr(alertRepo.SaveSubscription(ctx, &fx))
		}
	}

	published := &[]messaging.TopicMessage{}

	m := &messaging.MsgContextMock{
		PublishOnTopicFunc: func(ctx context.Context, message messaging.TopicMessage) error {
			*published = append(*published, message)
			return nil
		},
		RegisterTopicMessageHandlerFunc: func(routingKey string, handler messaging.TopicMessageHandler) {
		},
	}

	svc := New(alertRepo, sensorRepo, m, nil)

	return is, svc, alertRepo, sensorRepo, published
}
