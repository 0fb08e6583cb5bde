package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/repositories/group"
)

// mockRepository counts lookups to verify caching
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Get(ctx context.Context, name string) (*entities.GroupMembership, error) {
	args := m.Called(ctx, name)
	if g, ok := args.Get(0).(*entities.GroupMembership); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) Save(ctx context.Context, g *entities.GroupMembership) error {
	return m.Called(ctx, g).Error(0)
}

func (m *mockRepository) List(ctx context.Context) ([]*entities.GroupMembership, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*entities.GroupMembership), args.Error(1)
}

func (m *mockRepository) Close() error {
	return m.Called().Error(0)
}

type RegistryTestSuite struct {
	suite.Suite
	repo     *mockRepository
	registry *Registry
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	s.repo = new(mockRepository)
	s.registry = NewRegistry(s.repo)
	s.ctx = context.Background()
}

func (s *RegistryTestSuite) TestReadThroughCachesUntilInvalidate() {
	s.repo.On("Get", mock.Anything, "CASA").
		Return(&entities.GroupMembership{Group: "CASA", Companies: []string{"Acme"}}, nil).Twice()

	for i := 0; i < 3; i++ {
		companies, err := s.registry.Companies(s.ctx, "CASA")
		s.Require().NoError(err)
		s.Equal([]string{"Acme"}, companies)
	}
	s.repo.AssertNumberOfCalls(s.T(), "Get", 1)

	s.registry.Invalidate()
	_, err := s.registry.Companies(s.ctx, "CASA")
	s.Require().NoError(err)
	s.repo.AssertNumberOfCalls(s.T(), "Get", 2)
}

func (s *RegistryTestSuite) TestMissingGroupIsCachedAsNotFound() {
	s.repo.On("Get", mock.Anything, "NONE").Return(nil, group.ErrGroupNotFound).Once()

	for i := 0; i < 2; i++ {
		companies, err := s.registry.Companies(s.ctx, "NONE")
		s.Empty(companies)
		s.True(types.IsReconError(err, types.ErrGroupNotFound))
		s.ErrorIs(err, group.ErrGroupNotFound)
	}
	s.repo.AssertExpectations(s.T())
}

func (s *RegistryTestSuite) TestStoreErrorIsNotCached() {
	s.repo.On("Get", mock.Anything, "CASA").Return(nil, errors.New("connection reset")).Once()
	s.repo.On("Get", mock.Anything, "CASA").Return(&entities.GroupMembership{Group: "CASA"}, nil).Once()

	_, err := s.registry.Companies(s.ctx, "CASA")
	s.True(types.IsReconError(err, types.ErrStoreUnavailable))

	companies, err := s.registry.Companies(s.ctx, "CASA")
	s.Require().NoError(err)
	s.NotNil(companies)
	s.Empty(companies)
}
