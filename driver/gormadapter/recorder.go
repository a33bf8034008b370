package gormadapter

import (
	"context"
	"errors"

	"github.com/dogmatiq/recorderkit/internal/eventbatch"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// RecorderStore is an implementation of [recorder.Store] that persists
// events via GORM.
//
// PostgreSQL is the primary dialect. Other dialects work, but without an
// exclusive table lock the order of notification IDs is not guaranteed to
// match commit order.
type RecorderStore struct {
	// DB is the GORM database handle.
	DB *gorm.DB
}

// Open returns a recorder store that uses the PostgreSQL database at the
// given DSN.
func Open(ctx context.Context, dsn string) (*RecorderStore, error) {
	if dsn == "" {
		return nil, recorder.Errorf(
			recorder.ErrProgramming,
			"dsn must not be empty",
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, classify(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, classify(err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, classify(err)
	}

	return &RecorderStore{DB: db}, nil
}

// Open returns the recorder for the application with the given name.
func (s *RecorderStore) Open(ctx context.Context, application string) (recorder.ProcessRecorder, error) {
	if application == "" {
		return nil, recorder.Errorf(
			recorder.ErrProgramming,
			"application name must not be empty",
		)
	}

	return &recorderHandle{
		db:          s.DB,
		application: application,
	}, ctx.Err()
}

// Close closes the underlying database connection.
func (s *RecorderStore) Close() error {
	if s.DB == nil {
		return nil
	}

	sqlDB, err := s.DB.DB()
	if err != nil {
		return classify(err)
	}

	if err := sqlDB.Close(); err != nil {
		return classify(err)
	}

	return nil
}

// recorderHandle is an implementation of [recorder.ProcessRecorder] that
// stores the events of a single application via GORM.
type recorderHandle struct {
	db          *gorm.DB
	application string
}

func (h *recorderHandle) InsertEvents(ctx context.Context, events []recorder.StoredEvent) error {
	return h.insert(ctx, events, nil)
}

func (h *recorderHandle) InsertEventsWithTracking(
	ctx context.Context,
	events []recorder.StoredEvent,
	t recorder.Tracking,
) error {
	return h.insert(ctx, events, &t)
}

func (h *recorderHandle) insert(
	ctx context.Context,
	events []recorder.StoredEvent,
	t *recorder.Tracking,
) error {
	db, err := h.open()
	if err != nil {
		return err
	}

	if err := eventbatch.Validate(events); err != nil {
		return err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// On PostgreSQL, writers are serialized by an exclusive lock on
		// the event table so that notification IDs are assigned in commit
		// order. Readers are not blocked.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(
				`LOCK TABLE recorder_stored_events IN EXCLUSIVE MODE`,
			).Error; err != nil {
				return err
			}
		}

		for id, first := range eventbatch.FirstVersions(events) {
			head, err := h.streamHead(tx, id)
			if err != nil {
				return err
			}

			if first != head+1 {
				return recorder.Errorf(
					recorder.ErrIntegrity,
					"version %d of aggregate %s does not follow the current stream, expected %d",
					first,
					id,
					head+1,
				)
			}
		}

		for _, ev := range events {
			row := storedEventModelFromEvent(h.application, ev)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if t != nil {
			row := trackingModel{
				ApplicationName:         h.application,
				UpstreamApplicationName: t.ApplicationName,
				NotificationID:          t.NotificationID,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		return nil
	})

	return classify(err)
}

// streamHead returns the current version of the given aggregate, or
// [recorder.InitialVersion] - 1 if it has no events.
func (h *recorderHandle) streamHead(tx *gorm.DB, originatorID uuid.UUID) (int64, error) {
	var row storedEventModel
	err := tx.
		Where("application_name = ?", h.application).
		Where("originator_id = ?", originatorID).
		Order("originator_version DESC").
		First(&row).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return recorder.InitialVersion - 1, nil
	}
	if err != nil {
		return 0, err
	}

	return row.OriginatorVersion, nil
}

func (h *recorderHandle) SelectEvents(
	ctx context.Context,
	originatorID uuid.UUID,
	opts recorder.SelectOptions,
) ([]recorder.StoredEvent, error) {
	db, err := h.open()
	if err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).
		Where("application_name = ?", h.application).
		Where("originator_id = ?", originatorID)

	if opts.After != 0 {
		tx = tx.Where("originator_version > ?", opts.After)
	}
	if opts.Until != 0 {
		tx = tx.Where("originator_version <= ?", opts.Until)
	}

	order := "originator_version"
	if opts.Desc {
		order += " DESC"
	}
	tx = tx.Order(order)

	if opts.Limit > 0 {
		tx = tx.Limit(opts.Limit)
	}

	var rows []storedEventModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}

	var events []recorder.StoredEvent
	for _, row := range rows {
		events = append(events, row.toStoredEvent())
	}

	return events, nil
}

func (h *recorderHandle) SelectNotifications(
	ctx context.Context,
	start int64,
	limit int,
) ([]recorder.Notification, error) {
	db, err := h.open()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		return nil, ctx.Err()
	}

	var rows []storedEventModel
	if err := db.WithContext(ctx).
		Where("application_name = ?", h.application).
		Where("id >= ?", start).
		Order("id").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}

	var notifications []recorder.Notification
	for _, row := range rows {
		notifications = append(notifications, row.toNotification())
	}

	return notifications, nil
}

func (h *recorderHandle) MaxNotificationID(ctx context.Context) (int64, error) {
	db, err := h.open()
	if err != nil {
		return 0, err
	}

	var row storedEventModel
	err = db.WithContext(ctx).
		Where("application_name = ?", h.application).
		Order("id DESC").
		First(&row).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err)
	}

	return row.ID, nil
}

func (h *recorderHandle) MaxTrackingID(
	ctx context.Context,
	upstreamApplication string,
) (int64, error) {
	db, err := h.open()
	if err != nil {
		return 0, err
	}

	var row trackingModel
	err = db.WithContext(ctx).
		Where("application_name = ?", h.application).
		Where("upstream_application_name = ?", upstreamApplication).
		Order("notification_id DESC").
		First(&row).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err)
	}

	return row.NotificationID, nil
}

func (h *recorderHandle) Close() error {
	h.db = nil
	return nil
}

func (h *recorderHandle) open() (*gorm.DB, error) {
	if h.db == nil {
		return nil, recorder.Errorf(
			recorder.ErrInterface,
			"recorder is closed",
		)
	}

	return h.db, nil
}

var _ recorder.Store = (*RecorderStore)(nil)
var _ recorder.ProcessRecorder = (*recorderHandle)(nil)
