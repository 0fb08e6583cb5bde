package app

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/fadedpez/balancewatch/internal/config"
	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/db"
	"github.com/fadedpez/balancewatch/pkg/repositories/group"
	"github.com/fadedpez/balancewatch/pkg/repositories/movement"
	"github.com/fadedpez/balancewatch/pkg/repositories/snapshot"
)

// Stores bundles the three repositories of one backend. They share a single
// connection, released by Close.
type Stores struct {
	Snapshots snapshot.Repository
	Movements movement.Repository
	Groups    group.Repository
	close     func() error
}

// Close releases the shared connection
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the backend selected by STORAGE_TYPE
func OpenStores(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Stores, error) {
	switch cfg.StorageType {
	case config.StorageMemory:
		log.Warn("Using in-memory stores (data will be lost on restart)")
		return &Stores{
			Snapshots: snapshot.NewMemoryRepository(),
			Movements: movement.NewMemoryRepository(),
			Groups:    group.NewMemoryRepository(),
		}, nil

	case config.StorageSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		log.Info("Using SQLite stores at %s", cfg.SQLitePath)
		return sqliteStores(conn), nil

	case config.StoragePostgres, config.StorageMySQL:
		conn, err := db.OpenGorm(cfg.StorageType, cfg.DatabaseDSN, log)
		if err != nil {
			return nil, err
		}
		stores, err := gormStores(ctx, conn, cfg.AutoMigrate)
		if err != nil {
			stores.Close()
			return nil, err
		}
		log.Info("Using %s stores", cfg.StorageType)
		return stores, nil

	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}

func sqliteStores(conn *sql.DB) *Stores {
	return &Stores{
		Snapshots: snapshot.NewSQLiteRepository(conn),
		Movements: movement.NewSQLiteRepository(conn),
		Groups:    group.NewSQLiteRepository(conn),
		close:     conn.Close,
	}
}

func gormStores(ctx context.Context, conn *gorm.DB, migrate bool) (*Stores, error) {
	snapshots := snapshot.NewGormRepository(conn)
	movements := movement.NewGormRepository(conn)
	groups := group.NewGormRepository(conn)

	stores := &Stores{
		Snapshots: snapshots,
		Movements: movements,
		Groups:    groups,
		close:     snapshots.Close,
	}
	if !migrate {
		return stores, nil
	}

	for _, m := range []interface{ Migrate(context.Context) error }{snapshots, movements, groups} {
		if err := m.Migrate(ctx); err != nil {
			return stores, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return stores, nil
}
