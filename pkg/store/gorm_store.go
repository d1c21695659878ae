package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"imagevault/pkg/domain"
)

const migrateLockID int64 = 73217322

type GormStoreOptions struct {
	LogLevel gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithLogLevel overrides the GORM log level (Warn by default).
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store using GORM over SQLite or Postgres.
type GormStore struct {
	db       *gorm.DB
	postgres bool

	// writeMu serializes writers inside this process. Cross-process
	// serialization comes from the database (SQLite's write lock, Postgres
	// advisory locks).
	writeMu sync.Mutex
}

// OpenDialector picks the driver from the DSN: postgres URLs go to Postgres,
// anything else is treated as a SQLite database file.
func OpenDialector(dsn string) (gorm.Dialector, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, errors.New("database dsn is required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	default:
		return sqlite.Open(sqliteDSN(dsn)), nil
	}
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	pragmas := "_pragma=busy_timeout(5000)"
	if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	return dsn + sep + pragmas
}

// NewGormStore opens the DB and brings the schema up to date.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	dialector, err := OpenDialector(dsn)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &GormStore{db: db, postgres: db.Dialector.Name() == "postgres"}
	if !s.postgres && strings.Contains(dsn, ":memory:") {
		// each connection would otherwise see its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := s.Initialize(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Initialize applies pending schema migrations under the migration lock.
func (s *GormStore) Initialize() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.withMigrationLock(applyMigrations)
}

// AppliedMigrations returns the applied schema versions in ascending order.
func (s *GormStore) AppliedMigrations() ([]int, error) {
	var versions []int
	if err := s.db.Model(&SchemaMigration{}).Order("version ASC").Pluck("version", &versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *GormStore) withMigrationLock(fn func(*gorm.DB) error) error {
	if !s.postgres {
		return fn(s.db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(s.db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// InsertImage stores a new image row and counts the owner's rows in the same
// transaction.
func (s *GormStore) InsertImage(img domain.Image) (domain.Image, int, error) {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	model := imageToModel(img)
	model.ID = 0

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var count int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if s.postgres {
			key := fmt.Sprintf("user_images:%d", model.UserID)
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
				return fmt.Errorf("acquire owner lock: %w", err)
			}
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ImageModel{}).Where("user_id = ?", model.UserID).Count(&count).Error
	})
	if err != nil {
		return domain.Image{}, 0, err
	}
	return imageFromModel(model), int(count), nil
}

// ListImagesByOwner returns the owner's images ordered newest first.
func (s *GormStore) ListImagesByOwner(ownerID int64) ([]domain.Image, error) {
	var models []ImageModel
	if err := s.db.Where("user_id = ?", ownerID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Image, 0, len(models))
	for _, m := range models {
		res = append(res, imageFromModel(m))
	}
	return res, nil
}

// GetImage retrieves an image by id, scoped to its owner.
func (s *GormStore) GetImage(ownerID, id int64) (domain.Image, bool, error) {
	var model ImageModel
	if err := s.db.Where("id = ? AND user_id = ?", id, ownerID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Image{}, false, nil
		}
		return domain.Image{}, false, err
	}
	return imageFromModel(model), true, nil
}

// CountImagesByOwner returns the number of images for the owner.
func (s *GormStore) CountImagesByOwner(ownerID int64) (int, error) {
	var count int64
	if err := s.db.Model(&ImageModel{}).Where("user_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// HasImageAtPath reports whether one of the owner's rows uses storagePath.
func (s *GormStore) HasImageAtPath(ownerID int64, storagePath string) (bool, error) {
	var count int64
	if err := s.db.Model(&ImageModel{}).
		Where("user_id = ? AND file_path = ?", ownerID, storagePath).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func imageToModel(img domain.Image) ImageModel {
	var name *string
	if img.HasLabel() {
		value := img.LabelOrEmpty()
		name = &value
	}
	return ImageModel{
		ID:        img.ID,
		UserID:    img.OwnerID,
		FileID:    img.ContentRef,
		FilePath:  img.StoragePath,
		ImageName: name,
		Timestamp: img.CreatedAt.UTC(),
	}
}

func imageFromModel(m ImageModel) domain.Image {
	var label *string
	if m.ImageName != nil && *m.ImageName != "" {
		value := *m.ImageName
		label = &value
	}
	return domain.Image{
		ID:          m.ID,
		OwnerID:     m.UserID,
		ContentRef:  m.FileID,
		StoragePath: m.FilePath,
		Label:       label,
		CreatedAt:   m.Timestamp,
	}
}
