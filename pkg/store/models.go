package store

import "time"

// GORM models used for persistence. Table and column names match the
// single-file layout earlier deployments wrote, so an existing database is
// adopted in place.

// ImageModel is the current shape of a user_images row.
type ImageModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;index:idx_user_images_owner_time,priority:1"`
	FileID    string    `gorm:"column:file_id;not null"`
	FilePath  string    `gorm:"column:file_path;not null"`
	ImageName *string   `gorm:"column:image_name"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_user_images_owner_time,priority:2"`
}

func (ImageModel) TableName() string { return "user_images" }

// imageModelV1 is the layout before images could be named.
type imageModelV1 struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null"`
	FileID    string    `gorm:"column:file_id;not null"`
	FilePath  string    `gorm:"column:file_path;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
}

func (imageModelV1) TableName() string { return "user_images" }

// SchemaMigration records one applied schema upgrade.
type SchemaMigration struct {
	Version   int       `gorm:"column:version;primaryKey;autoIncrement:false"`
	Name      string    `gorm:"column:name;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (SchemaMigration) TableName() string { return "schema_migrations" }
