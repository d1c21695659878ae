package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const ownerTimeIndex = "idx_user_images_owner_time"

type migration struct {
	version int
	name    string
	up      func(tx *gorm.DB) error
}

// migrations is append-only. Every step checks the live schema first, so a
// database upgraded by hand (or by an older build without the bookkeeping
// table) converges without errors.
var migrations = []migration{
	{
		version: 1,
		name:    "create_user_images",
		up: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&imageModelV1{}) {
				return nil
			}
			return tx.Migrator().CreateTable(&imageModelV1{})
		},
	},
	{
		version: 2,
		name:    "add_image_name",
		up: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&ImageModel{}, "ImageName") {
				return nil
			}
			return tx.Migrator().AddColumn(&ImageModel{}, "ImageName")
		},
	},
	{
		version: 3,
		name:    "index_user_images_owner",
		up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&ImageModel{}, ownerTimeIndex) {
				return nil
			}
			return tx.Migrator().CreateIndex(&ImageModel{}, ownerTimeIndex)
		},
	},
}

func applyMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var applied []int
	if err := db.Model(&SchemaMigration{}).Pluck("version", &applied).Error; err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	for _, m := range migrations {
		if _, ok := done[m.version]; ok {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   m.version,
				Name:      m.name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// latestSchemaVersion is the version a fully migrated database reports.
func latestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}
