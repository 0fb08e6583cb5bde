package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/services/reconciliation"
	"github.com/fadedpez/balancewatch/pkg/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// BatchRunner runs one reconciliation batch
type BatchRunner interface {
	Run(ctx context.Context, req reconciliation.BatchRequest) (*entities.Batch, error)
}

// ReconcileRequest is the body of POST /api/reconcile
type ReconcileRequest struct {
	Groups []string `json:"groups" validate:"omitempty,dive,required"`
	Cutoff string   `json:"cutoff"`
}

// Server exposes batch triggering and execution history over HTTP
type Server struct {
	app      *fiber.App
	runner   BatchRunner
	history  storage.Storage
	validate *validator.Validate
	log      *logging.Logger
	started  time.Time
}

// NewServer creates the server and registers its routes. history may be nil,
// in which case the execution routes answer 404.
func NewServer(runner BatchRunner, history storage.Storage, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		runner:   runner,
		history:  history,
		validate: validator.New(),
		log:      log,
		started:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)

	api := s.app.Group("/api")
	api.Post("/reconcile", s.reconcile)
	api.Get("/executions", s.listExecutions)
	api.Get("/executions/:id", s.getExecution)
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.log.Info("HTTP API listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) health(c *fiber.Ctx) error {
	return JSONSuccess(c, "ok", fiber.Map{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) reconcile(c *fiber.Ctx) error {
	var req ReconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return JSONError(c, fiber.StatusBadRequest, "INVALID_BODY", nil)
		}
	}
	if err := s.validate.Struct(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, ve := range validationErrors {
				fields[ve.Field()] = ve.Tag()
			}
			return JSONError(c, fiber.StatusBadRequest, string(types.ErrInvalidArgument), fields)
		}
		return JSONError(c, fiber.StatusBadRequest, string(types.ErrInvalidArgument), nil)
	}

	batchReq := reconciliation.BatchRequest{
		Groups:      req.Groups,
		TriggeredBy: "api",
	}
	if cutoff := strings.TrimSpace(req.Cutoff); cutoff != "" {
		t, err := entities.ParseTimestamp(cutoff)
		if err != nil {
			return JSONError(c, fiber.StatusBadRequest, string(types.ErrInvalidArgument), fiber.Map{"cutoff": err.Error()})
		}
		batchReq.Cutoff = &t
	}

	batch, err := s.runner.Run(c.UserContext(), batchReq)
	if batch == nil {
		s.log.Error("API batch failed: %v", err)
		return JSONError(c, statusFor(err), string(types.CodeOf(err)), nil)
	}

	execution := storage.NewExecution(batch)
	if err != nil {
		return JSONError(c, fiber.StatusInternalServerError, string(types.CodeOf(err)), execution)
	}
	return JSONSuccess(c, "batch completed", execution)
}

func (s *Server) listExecutions(c *fiber.Ctx) error {
	if s.history == nil {
		return JSONError(c, fiber.StatusNotFound, "HISTORY_DISABLED", nil)
	}

	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return JSONError(c, fiber.StatusBadRequest, string(types.ErrInvalidArgument), fiber.Map{"limit": "out of range"})
	}

	executions, err := s.history.ListExecutions(c.UserContext(), limit)
	if err != nil {
		s.log.Error("Failed to list executions: %v", err)
		return JSONError(c, fiber.StatusInternalServerError, string(types.ErrStoreUnavailable), nil)
	}
	return JSONSuccess(c, "executions retrieved", executions)
}

func (s *Server) getExecution(c *fiber.Ctx) error {
	if s.history == nil {
		return JSONError(c, fiber.StatusNotFound, "HISTORY_DISABLED", nil)
	}

	execution, err := s.history.LoadExecution(c.UserContext(), c.Params("id"))
	if errors.Is(err, storage.ErrExecutionNotFound) {
		return JSONError(c, fiber.StatusNotFound, "EXECUTION_NOT_FOUND", nil)
	}
	if err != nil {
		s.log.Error("Failed to load execution %s: %v", c.Params("id"), err)
		return JSONError(c, fiber.StatusInternalServerError, string(types.ErrStoreUnavailable), nil)
	}
	return JSONSuccess(c, "execution retrieved", execution)
}
