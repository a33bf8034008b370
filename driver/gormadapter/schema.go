package gormadapter

import (
	"context"

	"gorm.io/gorm"
)

// CreateRecorderSchema creates the tables used to store events,
// notifications and tracking records.
func CreateRecorderSchema(
	ctx context.Context,
	db *gorm.DB,
) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&storedEventModel{},
		&trackingModel{},
	); err != nil {
		return classify(err)
	}

	return nil
}

// DropRecorderSchema drops the tables created by [CreateRecorderSchema].
func DropRecorderSchema(
	ctx context.Context,
	db *gorm.DB,
) error {
	if err := db.WithContext(ctx).Migrator().DropTable(
		&storedEventModel{},
		&trackingModel{},
	); err != nil {
		return classify(err)
	}

	return nil
}
