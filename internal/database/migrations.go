package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationFoldEntityKeys = "2026-08-12_fold_entity_keys"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationFoldEntityKeys, apply: foldEntityKeys},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// foldEntityKeys lowercases primary keys written by builds that stored
// display-cased slugs. Display casing lives in the id attribute, so folding
// the key column loses nothing.
func foldEntityKeys(db *gorm.DB) error {
	if err := db.Exec("UPDATE entity_records SET id = lower(id) WHERE id <> lower(id);").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE entity_index_entries SET item_id = lower(item_id) WHERE item_id <> lower(item_id);").Error
}
