package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dogmatiq/recorderkit/internal/eventbatch"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

// RecorderStore is an implementation of [recorder.Store] that persists
// events in PostgreSQL tables.
type RecorderStore struct {
	// DB is the PostgreSQL database connection.
	DB *sql.DB
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

// recorderHandle is an implementation of [recorder.ProcessRecorder] that
// stores the events of a single application in PostgreSQL tables.
type recorderHandle struct {
	db          *sql.DB
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

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback() // nolint:errcheck

	// Writers are serialized by an exclusive lock on the event table so
	// that notification IDs are assigned in commit order. Readers are not
	// blocked; EXCLUSIVE conflicts with every lock mode except ACCESS
	// SHARE.
	if _, err := tx.ExecContext(
		ctx,
		`LOCK TABLE recorderkit.stored_event IN EXCLUSIVE MODE`,
	); err != nil {
		return classify(err)
	}

	for id, first := range eventbatch.FirstVersions(events) {
		row := tx.QueryRowContext(
			ctx,
			`SELECT COALESCE(MAX(originator_version), $1)
			FROM recorderkit.stored_event
			WHERE application_name = $2
			AND originator_id = $3`,
			recorder.InitialVersion-1,
			h.application,
			id,
		)

		var head int64
		if err := row.Scan(&head); err != nil {
			return classify(err)
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
		// A nil payload is a valid (empty) payload, but it must not be
		// bound as NULL.
		state := ev.State
		if state == nil {
			state = []byte{}
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO recorderkit.stored_event (
				application_name,
				originator_id,
				originator_version,
				topic,
				state
			) VALUES (
				$1, $2, $3, $4, $5
			)`,
			h.application,
			ev.OriginatorID,
			ev.OriginatorVersion,
			ev.Topic,
			state,
		); err != nil {
			return classify(err)
		}
	}

	if t != nil {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO recorderkit.notification_tracking (
				application_name,
				upstream_application_name,
				notification_id
			) VALUES (
				$1, $2, $3
			)`,
			h.application,
			t.ApplicationName,
			t.NotificationID,
		); err != nil {
			return classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}

	return nil
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

	query := `SELECT
		originator_version,
		topic,
		state
	FROM recorderkit.stored_event
	WHERE application_name = $1
	AND originator_id = $2`
	args := []any{
		h.application,
		originatorID,
	}

	if opts.After != 0 {
		args = append(args, opts.After)
		query += fmt.Sprintf(`
	AND originator_version > $%d`, len(args))
	}

	if opts.Until != 0 {
		args = append(args, opts.Until)
		query += fmt.Sprintf(`
	AND originator_version <= $%d`, len(args))
	}

	query += `
	ORDER BY originator_version`
	if opts.Desc {
		query += ` DESC`
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(`
	LIMIT $%d`, len(args))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var events []recorder.StoredEvent
	for rows.Next() {
		ev := recorder.StoredEvent{
			OriginatorID: originatorID,
		}

		if err := rows.Scan(
			&ev.OriginatorVersion,
			&ev.Topic,
			&ev.State,
		); err != nil {
			return nil, classify(err)
		}

		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
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

	rows, err := db.QueryContext(
		ctx,
		`SELECT
			id,
			originator_id,
			originator_version,
			topic,
			state
		FROM recorderkit.stored_event
		WHERE application_name = $1
		AND id >= $2
		ORDER BY id
		LIMIT $3`,
		h.application,
		start,
		limit,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var notifications []recorder.Notification
	for rows.Next() {
		var n recorder.Notification

		if err := rows.Scan(
			&n.ID,
			&n.OriginatorID,
			&n.OriginatorVersion,
			&n.Topic,
			&n.State,
		); err != nil {
			return nil, classify(err)
		}

		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return notifications, nil
}

func (h *recorderHandle) MaxNotificationID(ctx context.Context) (int64, error) {
	db, err := h.open()
	if err != nil {
		return 0, err
	}

	row := db.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(id), 0)
		FROM recorderkit.stored_event
		WHERE application_name = $1`,
		h.application,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, classify(err)
	}

	return id, nil
}

func (h *recorderHandle) MaxTrackingID(
	ctx context.Context,
	upstreamApplication string,
) (int64, error) {
	db, err := h.open()
	if err != nil {
		return 0, err
	}

	row := db.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(notification_id), 0)
		FROM recorderkit.notification_tracking
		WHERE application_name = $1
		AND upstream_application_name = $2`,
		h.application,
		upstreamApplication,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, classify(err)
	}

	return id, nil
}

func (h *recorderHandle) Close() error {
	h.db = nil
	return nil
}

func (h *recorderHandle) open() (*sql.DB, error) {
	if h.db == nil {
		return nil, recorder.Errorf(
			recorder.ErrInterface,
			"recorder is closed",
		)
	}

	return h.db, nil
}
