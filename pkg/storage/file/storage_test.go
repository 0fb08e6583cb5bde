package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/storage"
)

type StorageTestSuite struct {
	suite.Suite
	tempDir string
	path    string
	storage *Storage
}

func TestStorage(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}

func (s *StorageTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "execution-storage-test")
	s.Require().NoError(err)
	s.tempDir = tempDir
	s.path = filepath.Join(tempDir, "history", "executions.json")

	st, err := New(&storage.Options{Path: s.path, MaxAge: time.Hour}, nil)
	s.Require().NoError(err)
	s.storage = st
}

func (s *StorageTestSuite) TearDownTest() {
	s.storage.Close()
	os.RemoveAll(s.tempDir)
}

func (s *StorageTestSuite) execution(id string, started time.Time) *storage.Execution {
	batch := &entities.Batch{
		ID:          id,
		TriggeredBy: "scheduler",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
		Summary:     entities.BatchSummary{GroupsAttempted: 1, GroupsSucceeded: 1, ResultsFlagged: 1},
		Flagged: []*entities.FlaggedResult{
			{ID: "f1", Result: &entities.ReconciliationResult{Group: "CASA", Platform: "Orion Stars", Account: "u1"}},
		},
	}
	return storage.NewExecution(batch)
}

func (s *StorageTestSuite) TestSaveAndLoadExecution() {
	ctx := context.Background()
	exec := s.execution("exec-1", time.Now())

	s.Require().NoError(s.storage.SaveExecution(ctx, exec))

	loaded, err := s.storage.LoadExecution(ctx, "exec-1")
	s.Require().NoError(err)
	s.Equal(storage.StatusSucceeded, loaded.Status)
	s.False(loaded.CreatedAt.IsZero(), "Created time not set")

	// A fresh instance reads what the first one wrote
	reopened, err := New(&storage.Options{Path: s.path}, nil)
	s.Require().NoError(err)
	fromDisk, err := reopened.LoadExecution(ctx, "exec-1")
	s.Require().NoError(err)
	s.Equal(1, fromDisk.Summary.ResultsFlagged)
	s.Require().Len(fromDisk.Flagged, 1)
	s.Equal("Orion Stars", fromDisk.Flagged[0].Result.Platform)
}

func (s *StorageTestSuite) TestLoadMissingExecution() {
	_, err := s.storage.LoadExecution(context.Background(), "nope")
	s.ErrorIs(err, storage.ErrExecutionNotFound)
}

func (s *StorageTestSuite) TestListExecutionsNewestFirst() {
	ctx := context.Background()
	base := time.Now()
	s.Require().NoError(s.storage.SaveExecution(ctx, s.execution("old", base.Add(-2*time.Hour))))
	s.Require().NoError(s.storage.SaveExecution(ctx, s.execution("new", base)))
	s.Require().NoError(s.storage.SaveExecution(ctx, s.execution("mid", base.Add(-time.Hour))))

	all, err := s.storage.ListExecutions(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := s.storage.ListExecutions(ctx, 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
}

func (s *StorageTestSuite) TestDeleteExecution() {
	ctx := context.Background()
	s.Require().NoError(s.storage.SaveExecution(ctx, s.execution("gone", time.Now())))

	s.Require().NoError(s.storage.DeleteExecution(ctx, "gone"))
	_, err := s.storage.LoadExecution(ctx, "gone")
	s.Error(err, "Execution should be deleted")
}

func (s *StorageTestSuite) TestCleanupOldExecutions() {
	ctx := context.Background()
	old := s.execution("old", time.Now().Add(-3*time.Hour))
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	s.Require().NoError(s.storage.SaveExecution(ctx, old))
	s.Require().NoError(s.storage.SaveExecution(ctx, s.execution("new", time.Now())))

	removed, err := s.storage.CleanupOldExecutions(ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(1, removed)

	remaining, err := s.storage.ListExecutions(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(remaining, 1)
	s.Equal("new", remaining[0].ID)
}

func (s *StorageTestSuite) TestFailedBatchStatus() {
	batch := &entities.Batch{ID: "b", Summary: entities.BatchSummary{GroupsAttempted: 2}}
	s.Equal(storage.StatusFailed, storage.NewExecution(batch).Status)
}
