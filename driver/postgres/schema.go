package postgres

import (
	"context"
	"database/sql"
)

// CreateRecorderSchema creates the PostgreSQL schema used to store events,
// notifications and tracking records.
func CreateRecorderSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	if _, err := db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS recorderkit`); err != nil {
		return classify(err)
	}

	if _, err := db.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS recorderkit.stored_event (
			id                 BIGSERIAL PRIMARY KEY,
			application_name   TEXT NOT NULL,
			originator_id      UUID NOT NULL,
			originator_version BIGINT NOT NULL,
			topic              TEXT NOT NULL,
			state              BYTEA NOT NULL,

			UNIQUE (application_name, originator_id, originator_version)
		)`,
	); err != nil {
		return classify(err)
	}

	// Notifications are read by application in ID order.
	if _, err := db.ExecContext(
		ctx,
		`CREATE INDEX IF NOT EXISTS stored_event_notification_idx
		ON recorderkit.stored_event (application_name, id)`,
	); err != nil {
		return classify(err)
	}

	if _, err := db.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS recorderkit.notification_tracking (
			application_name          TEXT NOT NULL,
			upstream_application_name TEXT NOT NULL,
			notification_id           BIGINT NOT NULL,

			PRIMARY KEY (
				application_name,
				upstream_application_name,
				notification_id
			)
		)`,
	); err != nil {
		return classify(err)
	}

	return nil
}

// DropRecorderSchema drops the PostgreSQL tables created by
// [CreateRecorderSchema].
func DropRecorderSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS recorderkit.stored_event`); err != nil {
		return classify(err)
	}

	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS recorderkit.notification_tracking`); err != nil {
		return classify(err)
	}

	return nil
}
