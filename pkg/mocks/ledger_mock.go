package mocks

import (
	"context"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockLedger is a mock implementation of ledger.Ledger interface.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Append(ctx context.Context, run *models.Run) (string, error) {
	args := m.Called(ctx, run)

	return args.String(0), args.Error(1)
}

func (m *MockLedger) ListForRule(ctx context.Context, ruleID string) ([]*models.Run, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockLedger) ListForInstance(ctx context.Context, instanceID string) ([]*models.Run, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}
