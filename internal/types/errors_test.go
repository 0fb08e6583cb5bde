package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (s *ErrorTestSuite) TestNewReconError() {
	err := NewReconError(ErrGroupNotFound, "group not registered")

	s.Equal(ErrGroupNotFound, err.Code)
	s.Equal("group not registered", err.Message)
	s.Nil(err.Err, "Underlying error should be nil")
}

func (s *ErrorTestSuite) TestWrapError() {
	underlying := errors.New("connection refused")

	err := WrapError(ErrStoreUnavailable, "list snapshots", underlying)

	s.Equal(ErrStoreUnavailable, err.Code)
	s.Equal("list snapshots", err.Message)
	s.Equal(underlying, err.Err)
	s.ErrorIs(err, underlying, "errors.Is should see through the wrapper")
}

func (s *ErrorTestSuite) TestErrorString() {
	testCases := []struct {
		name     string
		err      *ReconError
		expected string
	}{
		{
			name:     "Simple error",
			err:      NewReconError(ErrPartialMark, "requested 4, updated 3"),
			expected: "PARTIAL_MARK: requested 4, updated 3",
		},
		{
			name:     "Wrapped error",
			err:      WrapError(ErrStoreUnavailable, "mark consumed", errors.New("database is locked")),
			expected: "STORE_UNAVAILABLE: mark consumed (database is locked)",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, tc.err.Error())
		})
	}
}

func (s *ErrorTestSuite) TestIsReconError() {
	reconErr := NewReconError(ErrLockNotObtained, "group busy")

	testCases := []struct {
		name     string
		err      error
		code     ErrorCode
		expected bool
	}{
		{"Matching error", reconErr, ErrLockNotObtained, true},
		{"Non-matching code", reconErr, ErrInternalError, false},
		{"Wrapped with fmt", fmt.Errorf("group CASA: %w", reconErr), ErrLockNotObtained, true},
		{"Regular error", errors.New("regular error"), ErrLockNotObtained, false},
		{"Nil error", nil, ErrLockNotObtained, false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, IsReconError(tc.err, tc.code))
		})
	}
}

func (s *ErrorTestSuite) TestAs() {
	reconErr := NewReconError(ErrMalformedData, "bad timestamp")

	var target *ReconError
	s.True(As(fmt.Errorf("outer: %w", reconErr), &target))
	s.Equal(reconErr, target)

	target = nil
	s.False(As(errors.New("plain"), &target))
	s.Nil(target)

	s.False(As(nil, &target))
	s.False(As(reconErr, nil))
}

func (s *ErrorTestSuite) TestCodeOf() {
	s.Equal(ErrSinkFailed, CodeOf(WrapError(ErrSinkFailed, "export", errors.New("disk full"))))
	s.Equal(ErrInternalError, CodeOf(errors.New("plain")))
}
