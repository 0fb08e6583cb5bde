package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/services/reconciliation"
	"github.com/fadedpez/balancewatch/pkg/storage"
	storagemock "github.com/fadedpez/balancewatch/pkg/storage/mock"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, req reconciliation.BatchRequest) (*entities.Batch, error) {
	args := m.Called(ctx, req)
	batch, _ := args.Get(0).(*entities.Batch)
	return batch, args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type ServerTestSuite struct {
	suite.Suite
	runner  *mockRunner
	history *storagemock.Storage
	server  *Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.runner = &mockRunner{}
	s.history = storagemock.New()
	s.server = NewServer(s.runner, s.history, nil)
}

func (s *ServerTestSuite) do(method, path, body string) (int, envelope) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.server.App().Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var env envelope
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *ServerTestSuite) TestHealth() {
	status, env := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, status)
	s.True(env.Success)
}

func (s *ServerTestSuite) TestReconcileRunsBatch() {
	cutoff := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.runner.On("Run", mock.Anything, reconciliation.BatchRequest{
		Groups:      []string{"G1"},
		Cutoff:      &cutoff,
		TriggeredBy: "api",
	}).Return(&entities.Batch{
		ID:      "b1",
		Summary: entities.BatchSummary{GroupsAttempted: 1, GroupsSucceeded: 1, ResultsFlagged: 2},
	}, nil).Once()

	status, env := s.do(http.MethodPost, "/api/reconcile", `{"groups":["G1"],"cutoff":"2024-03-01 12:00:00"}`)
	s.Equal(http.StatusOK, status)
	s.True(env.Success)

	var execution storage.Execution
	s.Require().NoError(json.Unmarshal(env.Data, &execution))
	s.Equal("b1", execution.ID)
	s.Equal(storage.StatusSucceeded, execution.Status)
	s.Equal(2, execution.Summary.ResultsFlagged)
	s.runner.AssertExpectations(s.T())
}

func (s *ServerTestSuite) TestReconcileWithoutBodyDiscoversGroups() {
	s.runner.On("Run", mock.Anything, reconciliation.BatchRequest{TriggeredBy: "api"}).
		Return(&entities.Batch{ID: "b2"}, nil).Once()

	status, _ := s.do(http.MethodPost, "/api/reconcile", "")
	s.Equal(http.StatusOK, status)
	s.runner.AssertExpectations(s.T())
}

func (s *ServerTestSuite) TestReconcileRejectsBadInput() {
	status, env := s.do(http.MethodPost, "/api/reconcile", `{"cutoff":"someday"}`)
	s.Equal(http.StatusBadRequest, status)
	s.Equal(string(types.ErrInvalidArgument), env.Message)

	status, env = s.do(http.MethodPost, "/api/reconcile", `{"groups":["G1",""]}`)
	s.Equal(http.StatusBadRequest, status)
	s.False(env.Success)

	s.runner.AssertNotCalled(s.T(), "Run", mock.Anything, mock.Anything)
}

func (s *ServerTestSuite) TestReconcileFailedBatch() {
	s.runner.On("Run", mock.Anything, mock.Anything).Return(&entities.Batch{
		ID:      "b3",
		Summary: entities.BatchSummary{GroupsAttempted: 2},
	}, types.NewReconError(types.ErrBatchFailed, "no group succeeded")).Once()

	status, env := s.do(http.MethodPost, "/api/reconcile", `{}`)
	s.Equal(http.StatusInternalServerError, status)
	s.Equal(string(types.ErrBatchFailed), env.Message)

	var execution storage.Execution
	s.Require().NoError(json.Unmarshal(env.Data, &execution))
	s.Equal(storage.StatusFailed, execution.Status)
}

func (s *ServerTestSuite) TestReconcileStoreUnavailable() {
	s.runner.On("Run", mock.Anything, mock.Anything).
		Return(nil, types.WrapError(types.ErrStoreUnavailable, "list groups", errors.New("down"))).Once()

	status, env := s.do(http.MethodPost, "/api/reconcile", `{}`)
	s.Equal(http.StatusServiceUnavailable, status)
	s.Equal(string(types.ErrStoreUnavailable), env.Message)
}

func (s *ServerTestSuite) TestListExecutions() {
	s.history.On("ListExecutions", mock.Anything, 5).
		Return([]*storage.Execution{{ID: "b1"}, {ID: "b0"}}, nil).Once()

	status, env := s.do(http.MethodGet, "/api/executions?limit=5", "")
	s.Equal(http.StatusOK, status)

	var executions []*storage.Execution
	s.Require().NoError(json.Unmarshal(env.Data, &executions))
	s.Len(executions, 2)

	status, _ = s.do(http.MethodGet, "/api/executions?limit=0", "")
	s.Equal(http.StatusBadRequest, status)
}

func (s *ServerTestSuite) TestGetExecution() {
	s.history.On("LoadExecution", mock.Anything, "b1").Return(&storage.Execution{ID: "b1"}, nil).Once()
	s.history.On("LoadExecution", mock.Anything, "nope").Return(nil, storage.ErrExecutionNotFound).Once()

	status, _ := s.do(http.MethodGet, "/api/executions/b1", "")
	s.Equal(http.StatusOK, status)

	status, env := s.do(http.MethodGet, "/api/executions/nope", "")
	s.Equal(http.StatusNotFound, status)
	s.Equal("EXECUTION_NOT_FOUND", env.Message)
}

func (s *ServerTestSuite) TestExecutionsWithoutHistory() {
	server := NewServer(s.runner, nil, nil)
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/api/executions", nil), -1)
	s.Require().NoError(err)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}
