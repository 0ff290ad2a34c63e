package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"checkin-lock/internal/model"
)

const identityRowID = 1

type identityRow struct {
	ID             uint `gorm:"primaryKey"`
	DeviceType     int
	LockListenType int
	UpdatedAt      time.Time
}

func (identityRow) TableName() string { return "device_identity" }

// GormStore keeps the identity in a local SQLite file.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore opens (creating if needed) the SQLite database at path.
func OpenGormStore(path string) (*GormStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&identityRow{}); err != nil {
		return nil, fmt.Errorf("migrate identity table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (model.DeviceIdentity, bool, error) {
	var row identityRow
	err := s.db.WithContext(ctx).First(&row, identityRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DeviceIdentity{}, false, nil
	}
	if err != nil {
		return model.DeviceIdentity{}, false, fmt.Errorf("read identity: %w", err)
	}
	return model.DeviceIdentity{
		DeviceType:     model.DeviceType(row.DeviceType),
		LockListenType: model.DeviceType(row.LockListenType),
	}, true, nil
}

func (s *GormStore) Save(ctx context.Context, id model.DeviceIdentity) error {
	row := identityRow{
		ID:             identityRowID,
		DeviceType:     int(id.DeviceType),
		LockListenType: int(id.LockListenType),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
