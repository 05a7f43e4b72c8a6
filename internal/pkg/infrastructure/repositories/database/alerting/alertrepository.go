package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/logging"
	"github.com/cityops/iot-city-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/cityops/iot-city-monitoring/pkg/types"
)

//go:generate moq -rm -out alertrepository_mock.go . AlertRepository

var ErrAlertNotFound = fmt.Errorf("alert not found")
var ErrNotificationNotFound = fmt.Errorf("notification not found")
var ErrRepositoryError = fmt.Errorf("could not fetch data from repository")

type AlertRepository interface {
	GetThresholdsByUserID(ctx context.Context, userID string) ([]Threshold, error)
	GetActiveThresholds(ctx context.Context, sensorTypeID uint, userIDs ...string) ([]Threshold, error)
	SaveThreshold(ctx context.Context, threshold *Threshold) error

	GetSubscriptionsByUserID(ctx context.Context, userID string) ([]Subscription, error)
	GetActiveSubscribers(ctx context.Context, neighborhoodID uint) ([]Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error

	GetAlertsByUserID(ctx context.Context, userID string) ([]Alert, error)
	GetAlertByID(ctx context.Context, alertID uint) (Alert, error)
	AddAlert(ctx context.Context, alert *Alert) error
	SetAlertStatus(ctx context.Context, alertID uint, status string) error
	HasOpenAlertSince(ctx context.Context, sensorID uint, userID string, since time.Time) (bool, error)

	GetNotificationsByUserID(ctx context.Context, userID string) ([]Notification, error)
	AddNotification(ctx context.Context, notification *Notification) error
	SetNotificationStatus(ctx context.Context, notificationID uint, userID, status string) error
}

type alertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(connect database.ConnectorFunc) (AlertRepository, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&Threshold{}, &Subscription{}, &Alert{}, &Notification{})
	if err != nil {
		return nil, err
	}

	return &alertRepository{
		db: impl,
	}, nil
}

func (d *alertRepository) GetThresholdsByUserID(ctx context.Context, userID string) ([]Threshold, error) {
	var thresholds []Threshold

	err := d.db.Where(&Threshold{UserID: userID}).Find(&thresholds).Error

	return thresholds, err
}

func (d *alertRepository) GetActiveThresholds(ctx context.Context, sensorTypeID uint, userIDs ...string) ([]Threshold, error) {
	var thresholds []Threshold

	query := d.db.Where("sensor_type_id = ? AND active = ?", sensorTypeID, true)
	if len(userIDs) > 0 {
		query = query.Where("user_id IN ?", userIDs)
	}

	err := query.Find(&thresholds).Error

	return thresholds, err
}

// SaveThreshold creates or updates the single threshold row for the
// (user, sensor type) pair.
func (d *alertRepository) SaveThreshold(ctx context.Context, threshold *Threshold) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "sensor_type_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"min", "max", "active", "updated_at"}),
	}).Create(threshold).Error
}

func (d *alertRepository) GetSubscriptionsByUserID(ctx context.Context, userID string) ([]Subscription, error) {
	var subs []Subscription

	err := d.db.Where(&Subscription{UserID: userID}).Find(&subs).Error

	return subs, err
}

func (d *alertRepository) GetActiveSubscribers(ctx context.Context, neighborhoodID uint) ([]Subscription, error) {
	var subs []Subscription

	err := d.db.Where("neighborhood_id = ? AND active = ?", neighborhoodID, true).Find(&subs).Error

	return subs, err
}

func (d *alertRepository) SaveSubscription(ctx context.Context, sub *Subscription) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "neighborhood_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "alert_type", "updated_at"}),
	}).Create(sub).Error
}

func (d *alertRepository) GetAlertsByUserID(ctx context.Context, userID string) ([]Alert, error) {
	var alerts []Alert

	err := d.db.Where(&Alert{UserID: userID}).Order("created_at desc").Find(&alerts).Error

	return alerts, err
}

func (d *alertRepository) GetAlertByID(ctx context.Context, alertID uint) (Alert, error) {
	alert := Alert{}

	err := d.db.First(&alert, alertID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Alert{}, ErrAlertNotFound
		}
		return Alert{}, err
	}

	return alert, nil
}

func (d *alertRepository) AddAlert(ctx context.Context, alert *Alert) error {
	if alert.Status == "" {
		alert.Status = types.AlertStatusOpen
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	return d.db.Create(alert).Error
}

func (d *alertRepository) SetAlertStatus(ctx context.Context, alertID uint, status string) error {
	logger := logging.GetLoggerFromContext(ctx)

	alert := Alert{}

	result := d.db.First(&alert, alertID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrAlertNotFound
		}
		logger.Error().Err(result.Error).Msg("gorm error")
		return ErrRepositoryError
	}

	return d.db.Model(&alert).Update("status", status).Error
}

// HasOpenAlertSince reports whether an OPEN alert exists for the
// (sensor, user) pair created at or after the given point in time. It is the
// de-duplication gate used by the threshold evaluator.
func (d *alertRepository) HasOpenAlertSince(ctx context.Context, sensorID uint, userID string, since time.Time) (bool, error) {
	var count int64

	err := d.db.Model(&Alert{}).
		Where("sensor_id = ? AND user_id = ? AND status = ? AND created_at >= ?", sensorID, userID, types.AlertStatusOpen, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (d *alertRepository) GetNotificationsByUserID(ctx context.Context, userID string) ([]Notification, error) {
	var notifications []Notification

	err := d.db.Where(&Notification{UserID: userID}).Order("sent_at desc").Find(&notifications).Error

	return notifications, err
}

func (d *alertRepository) AddNotification(ctx context.Context, notification *Notification) error {
	if notification.Status == "" {
		notification.Status = types.NotificationStatusPending
	}
	if notification.SentAt.IsZero() {
		notification.SentAt = time.Now().UTC()
	}

	return d.db.Create(notification).Error
}

func (d *alertRepository) SetNotificationStatus(ctx context.Context, notificationID uint, userID, status string) error {
	notification := Notification{}

	result := d.db.Where(&Notification{UserID: userID}).First(&notification, notificationID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return result.Error
	}

	if notification.Status == status {
		return nil
	}

	return d.db.Model(&notification).Update("status", status).Error
}
