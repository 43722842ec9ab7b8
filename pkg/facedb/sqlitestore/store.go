// Package sqlitestore is a reference facedb.Store implementation
// backed by GORM and the pure-Go modernc.org/sqlite driver (no cgo),
// grounded on the framework's own database connection pattern. It
// exists for the test harness and the default simulator build; any
// other implementation satisfying facedb.Store is equally acceptable.
package sqlitestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/dbehnke/dmr-nexus/pkg/facedb"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// faceRow is the GORM model backing one facedb.Record.
type faceRow struct {
	ID        uint16 `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:31;uniqueIndex"`
	Feature   []byte
	SavedFlag bool
}

func (faceRow) TableName() string { return "face_records" }

// Store is a gorm-backed facedb.Store.
type Store struct {
	mu          sync.Mutex
	db          *gorm.DB
	featureSize int
	log         *logger.Logger
}

// Config configures where the store's sqlite file lives.
type Config struct {
	Path string
}

type gormLogAdapter struct{ log *logger.Logger }

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Open creates or opens the sqlite-backed face database.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = "facedb.sqlite3"
	}
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	log = log.WithComponent("facedb")

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: creating directory: %w", err)
		}
	}

	gormLog := gormlogger.New(&gormLogAdapter{log: log}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	dialector := sqlite.Dialector{DriverName: "sqlite", DSN: cfg.Path}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: unwrapping database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&faceRow{}); err != nil {
		return nil, fmt.Errorf("sqlitestore: migrating schema: %w", err)
	}

	log.Info("face database opened", logger.String("path", cfg.Path))
	return &Store{db: db, log: log}, nil
}

// Init records the feature-vector size new records must match.
func (s *Store) Init(featureSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.featureSize = featureSize
	return nil
}

// Add inserts a new record, generating an unused id.
func (s *Store) Add(name string, feature []byte) (facedb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.featureSize > 0 && len(feature) != s.featureSize {
		return facedb.Record{}, fmt.Errorf("sqlitestore: feature size %d != expected %d", len(feature), s.featureSize)
	}

	var existing faceRow
	if err := s.db.Where("name = ?", name).First(&existing).Error; err == nil {
		return facedb.Record{}, facedb.ErrDuplicate
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return facedb.Record{}, err
	}

	id, err := s.generateUnusedIDLocked()
	if err != nil {
		return facedb.Record{}, err
	}

	row := faceRow{ID: id, Name: name, Feature: feature, SavedFlag: true}
	if err := s.db.Create(&row).Error; err != nil {
		return facedb.Record{}, err
	}
	return toRecord(row), nil
}

func (s *Store) generateUnusedIDLocked() (uint16, error) {
	for id := uint16(1); id < 65535; id++ {
		var count int64
		if err := s.db.Model(&faceRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return 0, err
		}
		if count == 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("sqlitestore: face database full")
}

// GenerateUnusedID returns the next available id without reserving it.
func (s *Store) GenerateUnusedID() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateUnusedIDLocked()
}

// DeleteByID removes a record by id.
func (s *Store) DeleteByID(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Delete(&faceRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return facedb.ErrNotFound
	}
	return nil
}

// DeleteByName removes a record by name.
func (s *Store) DeleteByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Delete(&faceRow{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return facedb.ErrNotFound
	}
	return nil
}

// UpdateName renames an existing record.
func (s *Store) UpdateName(id uint16, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Model(&faceRow{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return facedb.ErrNotFound
	}
	return nil
}

// UpdateFeature replaces a record's stored feature vector.
func (s *Store) UpdateFeature(id uint16, feature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Model(&faceRow{}).Where("id = ?", id).Update("feature", feature)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return facedb.ErrNotFound
	}
	return nil
}

// LookupByID returns the record with the given id.
func (s *Store) LookupByID(id uint16) (facedb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row faceRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return facedb.Record{}, facedb.ErrNotFound
		}
		return facedb.Record{}, err
	}
	return toRecord(row), nil
}

// LookupByName returns the record with the given name.
func (s *Store) LookupByName(name string) (facedb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row faceRow
	if err := s.db.First(&row, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return facedb.Record{}, facedb.ErrNotFound
		}
		return facedb.Record{}, err
	}
	return toRecord(row), nil
}

// EnumerateIDs lists every stored id.
func (s *Store) EnumerateIDs() ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint16
	if err := s.db.Model(&faceRow{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if err := s.db.Model(&faceRow{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// MarkClean clears a record's saved flag (e.g. after sync to a
// companion device).
func (s *Store) MarkClean(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.Model(&faceRow{}).Where("id = ?", id).Update("saved_flag", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return facedb.ErrNotFound
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(row faceRow) facedb.Record {
	return facedb.Record{ID: row.ID, Name: row.Name, Feature: row.Feature, SavedFlag: row.SavedFlag}
}

var _ facedb.Store = (*Store)(nil)
