package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fadedpez/balancewatch/pkg/storage"
)

// Storage is a mock implementation of storage.Storage
type Storage struct {
	mock.Mock
}

func New() *Storage {
	return &Storage{}
}

func (s *Storage) SaveExecution(ctx context.Context, execution *storage.Execution) error {
	args := s.Called(ctx, execution)
	return args.Error(0)
}

func (s *Storage) LoadExecution(ctx context.Context, id string) (*storage.Execution, error) {
	args := s.Called(ctx, id)
	if execution, ok := args.Get(0).(*storage.Execution); ok {
		return execution, args.Error(1)
	}
	return nil, args.Error(1)
}

func (s *Storage) ListExecutions(ctx context.Context, limit int) ([]*storage.Execution, error) {
	args := s.Called(ctx, limit)
	if executions, ok := args.Get(0).([]*storage.Execution); ok {
		return executions, args.Error(1)
	}
	return nil, args.Error(1)
}

func (s *Storage) DeleteExecution(ctx context.Context, id string) error {
	args := s.Called(ctx, id)
	return args.Error(0)
}

func (s *Storage) CleanupOldExecutions(ctx context.Context, maxAge time.Duration) (int, error) {
	args := s.Called(ctx, maxAge)
	return args.Int(0), args.Error(1)
}
