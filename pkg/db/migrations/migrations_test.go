package migrations

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/suite"
)

type MigrationsTestSuite struct {
	suite.Suite
	db  *sql.DB
	ctx context.Context
}

func TestMigrationsSuite(t *testing.T) {
	suite.Run(t, new(MigrationsTestSuite))
}

func (s *MigrationsTestSuite) SetupTest() {
	var err error
	s.db, err = sql.Open("sqlite3", ":memory:")
	s.Require().NoError(err)
	s.db.SetMaxOpenConns(1)
	s.ctx = context.Background()
}

func (s *MigrationsTestSuite) TearDownTest() {
	s.db.Close()
}

func (s *MigrationsTestSuite) TestEmbeddedSchemaApplies() {
	m := NewMigrator(s.db, Schema(), nil)

	applied, err := m.MigrateUp(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, applied)

	for _, table := range []string{"balance_snapshots", "movements", "group_memberships"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		s.Require().NoError(err, table)
	}

	again, err := m.MigrateUp(s.ctx)
	s.Require().NoError(err)
	s.Zero(again, "second run applies nothing")
}

func (s *MigrationsTestSuite) TestCreateMigrationAndApplyFromDir() {
	dir := s.T().TempDir()
	m := NewDirMigrator(s.db, dir, nil)

	path, err := m.CreateMigration("add notes table")
	s.Require().NoError(err)
	s.Equal("001_add_notes_table.sql", filepath.Base(path))

	content, err := os.ReadFile(path)
	s.Require().NoError(err)
	content = append(content, []byte("CREATE TABLE notes (id TEXT PRIMARY KEY);\n")...)
	s.Require().NoError(os.WriteFile(path, content, 0644))

	loaded, err := m.LoadMigrations()
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Equal("add notes table", loaded[0].Description)

	applied, err := m.MigrateUp(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, applied)

	next, err := m.CreateMigration("second")
	s.Require().NoError(err)
	s.Equal("002_second.sql", filepath.Base(next))
}

func (s *MigrationsTestSuite) TestCreateMigrationNeedsDirectory() {
	_, err := NewMigrator(s.db, Schema(), nil).CreateMigration("nope")
	s.Error(err)
}
