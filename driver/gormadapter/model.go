package gormadapter

import (
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

type storedEventModel struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ApplicationName   string    `gorm:"column:application_name;not null;uniqueIndex:idx_recorder_stream"`
	OriginatorID      uuid.UUID `gorm:"column:originator_id;type:uuid;not null;uniqueIndex:idx_recorder_stream"`
	OriginatorVersion int64     `gorm:"column:originator_version;not null;uniqueIndex:idx_recorder_stream"`
	Topic             string    `gorm:"column:topic;not null"`
	State             []byte    `gorm:"column:state;not null"`
}

func (storedEventModel) TableName() string {
	return "recorder_stored_events"
}

func storedEventModelFromEvent(application string, ev recorder.StoredEvent) storedEventModel {
	row := storedEventModel{
		ApplicationName:   application,
		OriginatorID:      ev.OriginatorID,
		OriginatorVersion: ev.OriginatorVersion,
		Topic:             ev.Topic,
		State:             ev.State,
	}
	if row.State == nil {
		// A nil payload is a valid (empty) payload, but it must not be
		// bound as NULL.
		row.State = []byte{}
	}
	return row
}

func (m storedEventModel) toStoredEvent() recorder.StoredEvent {
	return recorder.StoredEvent{
		OriginatorID:      m.OriginatorID,
		OriginatorVersion: m.OriginatorVersion,
		Topic:             m.Topic,
		State:             m.State,
	}
}

func (m storedEventModel) toNotification() recorder.Notification {
	return recorder.Notification{
		ID:          m.ID,
		StoredEvent: m.toStoredEvent(),
	}
}

type trackingModel struct {
	ApplicationName         string `gorm:"column:application_name;primaryKey"`
	UpstreamApplicationName string `gorm:"column:upstream_application_name;primaryKey"`
	NotificationID          int64  `gorm:"column:notification_id;primaryKey;autoIncrement:false"`
}

func (trackingModel) TableName() string {
	return "recorder_notification_tracking"
}
