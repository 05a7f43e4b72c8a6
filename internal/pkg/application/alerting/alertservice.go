package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/cityops/iot-city-monitoring/internal/pkg/application/events"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/alerting"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/readings"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database/sensors"
	"github.com/cityops/iot-city-monitoring/pkg/types"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/samber/lo"
)

// DeduplicationWindow is the trailing window in which a second alert for the
// same (sensor, user) pair is suppressed.
const DeduplicationWindow = 30 * time.Minute

//go:generate moq -rm -out alertservice_mock.go . AlertService

type AlertService interface {
	Start()

	Evaluate(ctx context.Context, reading readings.Reading) error

	GetThresholds(ctx context.Context, userID string) ([]alerting.Threshold, error)
	SaveThreshold(ctx context.Context, threshold alerting.Threshold) error

	GetSubscriptions(ctx context.Context, userID string) ([]alerting.Subscription, error)
	SaveSubscription(ctx context.Context, sub alerting.Subscription) error

	GetAlerts(ctx context.Context, userID string) ([]alerting.Alert, error)
	SetAlertStatus(ctx context.Context, alertID uint, status string) error

	GetNotifications(ctx context.Context, userID string) ([]alerting.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID uint, userID string) error
}

var ErrInvalidStatus = fmt.Errorf("invalid alert status")

type alertSvc struct {
	alertRepo  alerting.AlertRepository
	sensorRepo sensors.SensorRepository
	messenger  messaging.MsgContext
	notifier   events.EventSender
}

func New(alertRepo alerting.AlertRepository, sensorRepo sensors.SensorRepository, messenger messaging.MsgContext, notifier events.EventSender) AlertService {
	svc := &alertSvc{
		alertRepo:  alertRepo,
		sensorRepo: sensorRepo,
		messenger:  messenger,
		notifier:   notifier,
	}

	return svc
}

func (svc *alertSvc) Start() {
	svc.messenger.RegisterTopicMessageHandler((&types.ReadingBatch{}).TopicName(), NewReadingBatchHandler(svc))
}

// Evaluate decides whether the given reading should raise alerts for any
// subscribed user, honouring the 30 minute de-duplication window.
func (svc *alertSvc) Evaluate(ctx context.Context, reading readings.Reading) error {
	logger := logging.GetLoggerFromContext(ctx)

	sensor, err := svc.sensorRepo.GetSensorByID(ctx, reading.SensorID)
	if err != nil {
		return fmt.Errorf("unable to resolve sensor %d: %w", reading.SensorID, err)
	}

	subscribers, err := svc.alertRepo.GetActiveSubscribers(ctx, sensor.NeighborhoodID)
	if err != nil {
		return fmt.Errorf("unable to fetch subscribers for neighborhood %d: %w", sensor.NeighborhoodID, err)
	}

	if len(subscribers) == 0 {
		return nil
	}

	userIDs := lo.Map(subscribers, func(s alerting.Subscription, _ int) string {
		return s.UserID
	})
	alertTypeByUser := lo.SliceToMap(subscribers, func(s alerting.Subscription) (string, string) {
		return s.UserID, s.AlertType
	})

	thresholds, err := svc.alertRepo.GetActiveThresholds(ctx, sensor.SensorTypeID, userIDs...)
	if err != nil {
		return fmt.Errorf("unable to fetch thresholds for sensor type %d: %w", sensor.SensorTypeID, err)
	}

	for _, threshold := range thresholds {
		crossed, triggered, severity := Classify(reading.Value, threshold.Min, threshold.Max)
		if !crossed {
			continue
		}

		if alertTypeByUser[threshold.UserID] == types.AlertTypeCriticalOnly && severity != types.AlertSeverityCritical {
			continue
		}

		since := time.Now().UTC().Add(-DeduplicationWindow)

		duplicate, err := svc.alertRepo.HasOpenAlertSince(ctx, sensor.ID, threshold.UserID, since)
		if err != nil {
			logger.Error().Err(err).Msg("duplicate alert check failed")
			continue
		}

		if duplicate {
			logger.Debug().Msgf("suppressing duplicate alert for sensor %d and user %s", sensor.ID, threshold.UserID)
			continue
		}

		err = svc.createAlert(ctx, sensor, reading, threshold.UserID, triggered, severity)
		if err != nil {
			logger.Error().Err(err).Msgf("unable to create alert for sensor %d and user %s", sensor.ID, threshold.UserID)
		}
	}

	return nil
}

func (svc *alertSvc) createAlert(ctx context.Context, sensor sensors.Sensor, reading readings.Reading, userID string, triggered float64, severity string) error {
	logger := logging.GetLoggerFromContext(ctx)

	alert := alerting.Alert{
		SensorID:           sensor.ID,
		UserID:             userID,
		MeasuredValue:      reading.Value,
		TriggeredThreshold: triggered,
		Severity:           severity,
		Status:             types.AlertStatusOpen,
		CreatedAt:          time.Now().UTC(),
	}

	err := svc.alertRepo.AddAlert(ctx, &alert)
	if err != nil {
		return err
	}

	notification := alerting.Notification{
		AlertID: alert.ID,
		UserID:  userID,
		Title:   fmt.Sprintf("%s alert for %s", severity, sensor.Name),
		Message: fmt.Sprintf("Sensor %s in %s measured %g %s, outside your configured threshold of %g", sensor.Name, sensor.Neighborhood.Name, reading.Value, reading.Unit, triggered),
		Status:  types.NotificationStatusPending,
		SentAt:  time.Now().UTC(),
	}

	err = svc.alertRepo.AddNotification(ctx, &notification)
	if err != nil {
		return err
	}

	err = svc.messenger.PublishOnTopic(ctx, &types.AlertCreated{
		Alert:     mapAlert(alert),
		Timestamp: alert.CreatedAt,
	})
	if err != nil {
		logger.Error().Err(err).Msg("unable to publish alert created event")
	}

	err = svc.messenger.PublishOnTopic(ctx, &types.NotificationCreated{
		Notification: mapNotification(notification),
		Timestamp:    notification.SentAt,
	})
	if err != nil {
		logger.Error().Err(err).Msg("unable to publish notification created event")
	}

	if svc.notifier != nil {
		err = svc.notifier.Send(ctx, mapNotification(notification))
		if err != nil {
			logger.Error().Err(err).Msg("unable to deliver notification webhook")
		}
	}

	return nil
}

func (svc *alertSvc) GetThresholds(ctx context.Context, userID string) ([]alerting.Threshold, error) {
	return svc.alertRepo.GetThresholdsByUserID(ctx, userID)
}

func (svc *alertSvc) SaveThreshold(ctx context.Context, threshold alerting.Threshold) error {
	return svc.alertRepo.SaveThreshold(ctx, &threshold)
}

func (svc *alertSvc) GetSubscriptions(ctx context.Context, userID string) ([]alerting.Subscription, error) {
	return svc.alertRepo.GetSubscriptionsByUserID(ctx, userID)
}

func (svc *alertSvc) SaveSubscription(ctx context.Context, sub alerting.Subscription) error {
	if sub.AlertType == "" {
		sub.AlertType = types.AlertTypeAll
	}
	return svc.alertRepo.SaveSubscription(ctx, &sub)
}

func (svc *alertSvc) GetAlerts(ctx context.Context, userID string) ([]alerting.Alert, error) {
	return svc.alertRepo.GetAlertsByUserID(ctx, userID)
}

func (svc *alertSvc) SetAlertStatus(ctx context.Context, alertID uint, status string) error {
	validStatus := []string{types.AlertStatusOpen, types.AlertStatusInProgress, types.AlertStatusResolved, types.AlertStatusClosed}
	if !lo.Contains(validStatus, status) {
		return ErrInvalidStatus
	}

	err := svc.alertRepo.SetAlertStatus(ctx, alertID, status)
	if err != nil {
		return err
	}

	if status == types.AlertStatusClosed {
		return svc.messenger.PublishOnTopic(ctx, &types.AlertClosed{
			ID:        alertID,
			Timestamp: time.Now().UTC(),
		})
	}

	return nil
}

func (svc *alertSvc) GetNotifications(ctx context.Context, userID string) ([]alerting.Notification, error) {
	return svc.alertRepo.GetNotificationsByUserID(ctx, userID)
}

func (svc *alertSvc) MarkNotificationRead(ctx context.Context, notificationID uint, userID string) error {
	return svc.alertRepo.SetNotificationStatus(ctx, notificationID, userID, types.NotificationStatusRead)
}

func mapAlert(a alerting.Alert) types.Alert {
	return types.Alert{
		ID:                 a.ID,
		SensorID:           a.SensorID,
		UserID:             a.UserID,
		MeasuredValue:      a.MeasuredValue,
		TriggeredThreshold: a.TriggeredThreshold,
		Severity:           a.Severity,
		Status:             a.Status,
		CreatedAt:          a.CreatedAt,
	}
}

func mapNotification(n alerting.Notification) types.Notification {
	return types.Notification{
		ID:      n.ID,
		AlertID: n.AlertID,
		UserID:  n.UserID,
		Title:   n.Title,
		Message: n.Message,
		Status:  n.Status,
		SentAt:  n.SentAt,
	}
}
