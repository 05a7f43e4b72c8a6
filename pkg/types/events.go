package types

import "time"

type ReadingBatch struct {
	Readings  []Reading `json:"readings"`
	MaxID     uint      `json:"maxID"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *ReadingBatch) ContentType() string {
	return "application/json"
}
func (r *ReadingBatch) TopicName() string {
	return "reading.batch"
}

type AlertCreated struct {
	Alert     Alert     `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *AlertCreated) ContentType() string {
	return "application/json"
}
func (a *AlertCreated) TopicName() string {
	return "alert.created"
}

type AlertClosed struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *AlertClosed) ContentType() string {
	return "application/json"
}
func (a *AlertClosed) TopicName() string {
	return "alert.closed"
}

type NotificationCreated struct {
	Notification Notification `json:"notification"`
	Timestamp    time.Time    `json:"timestamp"`
}

func (n *NotificationCreated) ContentType() string {
	return "application/json"
}
func (n *NotificationCreated) TopicName() string {
	return "notification.created"
}
