package movement

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/balancewatch/pkg/db"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

type RepositoryTestSuite struct {
	suite.Suite
	newRepo func() Repository
	repo    Repository
	ctx     context.Context
	base    time.Time
}

func TestMemoryRepositorySuite(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{newRepo: func() Repository { return NewMemoryRepository() }})
}

func TestSQLiteRepositorySuite(t *testing.T) {
	s := &RepositoryTestSuite{}
	s.newRepo = func() Repository {
		conn, err := db.OpenSQLite(context.Background(), filepath.Join(s.T().TempDir(), "ledger.db"), nil)
		s.Require().NoError(err)
		return NewSQLiteRepository(conn)
	}
	suite.Run(t, s)
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo()
	s.base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.repo.Close()
}

func (s *RepositoryTestSuite) upsert(id, game, company string, typ entities.MovementType, amount string, status entities.MovementStatus, at time.Time) {
	s.Require().NoError(s.repo.Upsert(s.ctx, &entities.Movement{
		ID:          id,
		GameName:    game,
		Company:     company,
		Type:        typ,
		Amount:      decimal.RequireFromString(amount),
		Status:      status,
		EffectiveAt: at,
	}))
}

func movementIDs(ms []*entities.Movement) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func (s *RepositoryTestSuite) TestUpsertOverwrites() {
	s.upsert("m1", "Orion Stars", "Acme", entities.MovementAddCredits, "10", entities.StatusPending, s.base)
	s.upsert("m1", "Orion Stars", "Acme", entities.MovementAddCredits, "12.5", entities.StatusApproved, s.base)

	got, err := s.repo.Get(s.ctx, "m1")
	s.Require().NoError(err)
	s.Equal(entities.StatusApproved, got.Status)
	s.True(decimal.RequireFromString("12.5").Equal(got.Amount))
	s.True(s.base.Equal(got.EffectiveAt))

	_, err = s.repo.Get(s.ctx, "nope")
	s.ErrorIs(err, ErrMovementNotFound)
}

func (s *RepositoryTestSuite) TestListApprovedFilters() {
	prev, curr := s.base, s.base.Add(time.Hour)

	s.upsert("at-prev", "ORION STARS", "acme", entities.MovementAddCredits, "1", entities.StatusApproved, prev)
	s.upsert("inside", " orion  stars ", "ACME ", entities.MovementWithdrawCredits, "2", entities.StatusApproved, prev.Add(30*time.Minute))
	s.upsert("at-curr", "Orion Stars", "Beta", entities.MovementRemoveCredits, "3", entities.StatusApproved, curr)
	s.upsert("after", "Orion Stars", "Acme", entities.MovementAddCredits, "4", entities.StatusApproved, curr.Add(time.Second))
	s.upsert("before", "Orion Stars", "Acme", entities.MovementAddCredits, "5", entities.StatusApproved, prev.Add(-time.Second))
	s.upsert("pending", "Orion Stars", "Acme", entities.MovementAddCredits, "6", entities.StatusPending, prev.Add(time.Minute))
	s.upsert("other-game", "Fire Kirin", "Acme", entities.MovementAddCredits, "7", entities.StatusApproved, prev.Add(time.Minute))
	s.upsert("other-co", "Orion Stars", "Gamma", entities.MovementAddCredits, "8", entities.StatusApproved, prev.Add(time.Minute))

	got, err := s.repo.ListApproved(s.ctx, "Orion Stars", []string{"Acme", "beta"}, prev, curr)
	s.Require().NoError(err)
	s.Equal([]string{"at-prev", "inside", "at-curr"}, movementIDs(got), "window is closed on both ends")
}

func (s *RepositoryTestSuite) TestListApprovedWithoutCompanies() {
	s.upsert("m1", "Orion Stars", "Acme", entities.MovementAddCredits, "1", entities.StatusApproved, s.base)

	got, err := s.repo.ListApproved(s.ctx, "Orion Stars", nil, s.base, s.base)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *RepositoryTestSuite) TestSubSecondBoundary() {
	s.upsert("late", "P", "Acme", entities.MovementAddCredits, "1", entities.StatusApproved, s.base.Add(500*time.Millisecond))

	got, err := s.repo.ListApproved(s.ctx, "P", []string{"Acme"}, s.base.Add(-time.Hour), s.base)
	s.Require().NoError(err)
	s.Empty(got, "a movement half a second after the window end is excluded")
}

type GormMappingTestSuite struct {
	suite.Suite
}

func TestGormMappingSuite(t *testing.T) {
	suite.Run(t, new(GormMappingTestSuite))
}

func (s *GormMappingTestSuite) TestRowRoundTrip() {
	m := &entities.Movement{
		ID:          "m1",
		GameName:    " orion  stars",
		Company:     "acme",
		Type:        entities.MovementWithdrawCredits,
		Amount:      decimal.RequireFromString("3.25"),
		Status:      entities.StatusApproved,
		EffectiveAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	row := toMovementRow(m)
	s.Equal("ORION STARS", row.GameKey)
	s.Equal("ACME", row.CompanyKey)
	s.Equal("2024-03-01 10:00:00", row.EffectiveAt)

	back, err := row.toEntity()
	s.Require().NoError(err)
	s.Equal(m.Type, back.Type)
	s.True(m.EffectiveAt.Equal(back.EffectiveAt))
	s.True(m.Amount.Equal(back.Amount))

	row.EffectiveAt = "garbage"
	_, err = row.toEntity()
	s.Error(err)
}
