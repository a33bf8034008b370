package sqlite

import (
	"context"
	"database/sql"
)

// CreateRecorderSchema creates the SQLite tables used to store events,
// notifications and tracking records.
func CreateRecorderSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	if _, err := db.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS stored_event (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			application_name   TEXT NOT NULL,
			originator_id      TEXT NOT NULL,
			originator_version INTEGER NOT NULL,
			topic              TEXT NOT NULL,
			state              BLOB NOT NULL,

			UNIQUE (application_name, originator_id, originator_version)
		)`,
	); err != nil {
		return classify(err)
	}

	if _, err := db.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS notification_tracking (
			application_name          TEXT NOT NULL,
			upstream_application_name TEXT NOT NULL,
			notification_id           INTEGER NOT NULL,

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
