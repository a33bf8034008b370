package sqlite

import (
	"context"

	"github.com/dogmatiq/recorderkit/internal/eventbatch"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

// recorderHandle is an implementation of [recorder.ProcessRecorder] that
// stores the events of a single application in SQLite tables.
type recorderHandle struct {
	store       *RecorderStore
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
	store, err := h.open()
	if err != nil {
		return err
	}

	if err := eventbatch.Validate(events); err != nil {
		return err
	}

	defer store.lock()()

	// The transaction takes the database's write lock immediately (see
	// [Open]), so the stream positions read below cannot change before the
	// batch commits.
	tx, err := store.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback() // nolint:errcheck

	for id, first := range eventbatch.FirstVersions(events) {
		row := tx.QueryRowContext(
			ctx,
			`SELECT COALESCE(MAX(originator_version), ?)
			FROM stored_event
			WHERE application_name = ?
			AND originator_id = ?`,
			recorder.InitialVersion-1,
			h.application,
			id.String(),
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
			`INSERT INTO stored_event (
				application_name,
				originator_id,
				originator_version,
				topic,
				state
			) VALUES (
				?, ?, ?, ?, ?
			)`,
			h.application,
			ev.OriginatorID.String(),
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
			`INSERT INTO notification_tracking (
				application_name,
				upstream_application_name,
				notification_id
			) VALUES (
				?, ?, ?
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
	store, err := h.open()
	if err != nil {
		return nil, err
	}

	defer store.lock()()

	query := `SELECT
		originator_version,
		topic,
		state
	FROM stored_event
	WHERE application_name = ?
	AND originator_id = ?`
	args := []any{
		h.application,
		originatorID.String(),
	}

	if opts.After != 0 {
		query += `
	AND originator_version > ?`
		args = append(args, opts.After)
	}

	if opts.Until != 0 {
		query += `
	AND originator_version <= ?`
		args = append(args, opts.Until)
	}

	query += `
	ORDER BY originator_version`
	if opts.Desc {
		query += ` DESC`
	}

	if opts.Limit > 0 {
		query += `
	LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := store.DB.QueryContext(ctx, query, args...)
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
	store, err := h.open()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		return nil, ctx.Err()
	}

	defer store.lock()()

	rows, err := store.DB.QueryContext(
		ctx,
		`SELECT
			id,
			originator_id,
			originator_version,
			topic,
			state
		FROM stored_event
		WHERE application_name = ?
		AND id >= ?
		ORDER BY id
		LIMIT ?`,
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
		var (
			n  recorder.Notification
			id string
		)

		if err := rows.Scan(
			&n.ID,
			&id,
			&n.OriginatorVersion,
			&n.Topic,
			&n.State,
		); err != nil {
			return nil, classify(err)
		}

		n.OriginatorID, err = uuid.Parse(id)
		if err != nil {
			return nil, recorder.NewError(recorder.ErrData, err)
		}

		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return notifications, nil
}

func (h *recorderHandle) MaxNotificationID(ctx context.Context) (int64, error) {
	store, err := h.open()
	if err != nil {
		return 0, err
	}

	defer store.lock()()

	row := store.DB.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(id), 0)
		FROM stored_event
		WHERE application_name = ?`,
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
	store, err := h.open()
	if err != nil {
		return 0, err
	}

	defer store.lock()()

	row := store.DB.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(notification_id), 0)
		FROM notification_tracking
		WHERE application_name = ?
		AND upstream_application_name = ?`,
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
	h.store = nil
	return nil
}

func (h *recorderHandle) open() (*RecorderStore, error) {
	if h.store == nil {
		return nil, recorder.Errorf(
			recorder.ErrInterface,
			"recorder is closed",
		)
	}

	return h.store, nil
}
