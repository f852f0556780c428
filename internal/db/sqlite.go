package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

// SpaceStore owns the embedded relational state for exactly one space. The
// database file lives under dataDir/spaces/<spaceID>.db and is opened by at
// most one coordinator instance.
type SpaceStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func OpenSpaceStore(dataDir string, spaceID uuid.UUID, log *logger.Logger) (*SpaceStore, error) {
	storeLog := log.With("service", "SpaceStore", "space_id", spaceID.String())

	dir := filepath.Join(dataDir, "spaces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create space data dir: %w", err)
	}
	dsn := filepath.Join(dir, spaceID.String()+".db")

	storeLog.Info("Opening space store", "path", dsn)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open space store: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if err := gdb.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("space store pragma: %w", err)
		}
	}

	s := &SpaceStore{db: gdb, log: storeLog}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMemoryStore opens a throwaway in-memory store. Used by tests.
func OpenMemoryStore(log *logger.Logger) (*SpaceStore, error) {
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_rand="+uuid.NewString()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	s := &SpaceStore{db: gdb, log: log.With("service", "SpaceStore", "space_id", "memory")}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SpaceStore) DB() *gorm.DB { return s.db }

// Migrate creates the schema idempotently on first access and then probes
// for columns added after the original schema shipped. Evolution is strictly
// additive, so older space files pick up new nullable columns without a
// version table.
func (s *SpaceStore) Migrate() error {
	s.log.Info("Migrating space store tables...")
	if err := s.db.AutoMigrate(
		&types.Asset{},
		&types.Variant{},
		&types.ImageRef{},
		&types.ChatMessage{},
		&types.Lineage{},
		&types.TileSet{},
		&types.TilePosition{},
	); err != nil {
		s.log.Error("Space store migration failed", "error", err)
		return fmt.Errorf("space store migrate: %w", err)
	}
	return s.probeColumns()
}

// probeColumns backfills nullable columns that older space files predate.
func (s *SpaceStore) probeColumns() error {
	probes := []struct {
		model  interface{}
		column string
	}{
		{&types.Asset{}, "tags"},
		{&types.Asset{}, "active_variant_id"},
		{&types.Variant{}, "thumb_key"},
		{&types.Variant{}, "starred"},
		{&types.Lineage{}, "severed"},
		{&types.TileSet{}, "seed_variant_id"},
	}
	m := s.db.Migrator()
	for _, p := range probes {
		if m.HasColumn(p.model, p.column) {
			continue
		}
		s.log.Warn("Adding missing column to space store", "column", p.column)
		if err := m.AddColumn(p.model, p.column); err != nil {
			return fmt.Errorf("add column %s: %w", p.column, err)
		}
	}
	return nil
}

func (s *SpaceStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
