package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/balancewatch/internal/logging"
)

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error
}

// Scheduler runs named tasks on fixed intervals. Each task runs once on
// start and then on every tick. Runs of one task are sequential, and ticks
// missed during a long run collapse into one.
type Scheduler struct {
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *logging.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Default
	}
	return &Scheduler{
		tasks: make([]*Task, 0),
		log:   log,
	}
}

// AddTask adds a task to the scheduler. Tasks added after Start are not run.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	})
}

// Tasks returns the names of the registered tasks
func (s *Scheduler) Tasks() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.Name)
	}
	return names
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, task)
	}

	s.log.Info("Scheduler started with %d tasks", len(s.tasks))
}

// Stop cancels every task and waits for in-flight runs to return
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mutex.Unlock()

	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// runTask runs a task at the specified interval
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer s.wg.Done()
	log := s.log.WithField("task", task.Name)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	log.Debug("Running task %s immediately on startup", task.Name)
	s.execute(ctx, task, log)

	for {
		select {
		case <-ticker.C:
			log.Debug("Running scheduled task: %s", task.Name)
			s.execute(ctx, task, log)
		case <-ctx.Done():
			log.Debug("Task %s stopped", task.Name)
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task *Task, log *logging.Logger) {
	start := time.Now()
	if err := task.Fn(ctx); err != nil {
		log.Error("Error running task %s: %v", task.Name, err)
		return
	}
	log.Debug("Task %s finished in %v", task.Name, time.Since(start))
}
