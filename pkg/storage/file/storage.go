package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/storage"
)

// Storage keeps execution history in a single JSON file
type Storage struct {
	path       string
	mu         sync.RWMutex
	executions map[string]*storage.Execution
	options    *storage.Options
	log        *logging.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a new file storage instance
func New(options *storage.Options, logger *logging.Logger) (*Storage, error) {
	if options == nil {
		options = storage.NewOptions()
	}
	if logger == nil {
		logger = logging.Default
	}

	s := &Storage{
		path:       options.Path,
		executions: make(map[string]*storage.Execution),
		options:    options,
		log:        logger,
		stop:       make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	if options.AutoCleanup && options.MaxAge > 0 {
		go s.cleanupRoutine()
	}

	return s, nil
}

// SaveExecution saves or updates an execution record
func (s *Storage) SaveExecution(ctx context.Context, execution *storage.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now()
	}
	s.executions[execution.ID] = execution

	return s.save()
}

// LoadExecution loads an execution by ID
func (s *Storage) LoadExecution(ctx context.Context, id string) (*storage.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrExecutionNotFound, id)
	}
	return execution, nil
}

// ListExecutions lists executions newest first
func (s *Storage) ListExecutions(ctx context.Context, limit int) ([]*storage.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]*storage.Execution, 0, len(s.executions))
	for _, execution := range s.executions {
		executions = append(executions, execution)
	}
	sort.Slice(executions, func(i, j int) bool {
		if !executions[i].StartedAt.Equal(executions[j].StartedAt) {
			return executions[i].StartedAt.After(executions[j].StartedAt)
		}
		return executions[i].ID < executions[j].ID
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}
	return executions, nil
}

// DeleteExecution deletes an execution record
func (s *Storage) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.executions, id)
	return s.save()
}

// CleanupOldExecutions removes executions created more than maxAge ago
func (s *Storage) CleanupOldExecutions(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, execution := range s.executions {
		if now.Sub(execution.CreatedAt) > maxAge {
			delete(s.executions, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	return removed, s.save()
}

// Close stops the cleanup routine
func (s *Storage) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &s.executions)
}

func (s *Storage) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(s.executions)
	if err != nil {
		return fmt.Errorf("failed to marshal executions: %w", err)
	}

	// Replace via rename
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

func (s *Storage) cleanupRoutine() {
	ticker := time.NewTicker(s.options.MaxAge / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldExecutions(context.Background(), s.options.MaxAge); err != nil {
				s.log.Error("Error cleaning up old executions: %v", err)
			}
		case <-s.stop:
			return
		}
	}
}
