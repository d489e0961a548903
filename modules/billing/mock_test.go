package billing_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/cutsync/pkg/subscription"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetSummary(ctx context.Context, userID uuid.UUID) (*subscription.Summary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Summary), args.Error(1)
}

func (m *MockService) ConsumeCredit(ctx context.Context, userID, appointmentID uuid.UUID) (*subscription.Balance, error) {
	args := m.Called(ctx, userID, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Balance), args.Error(1)
}

func (m *MockService) RefundCredit(ctx context.Context, userID uuid.UUID) (*subscription.Balance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Balance), args.Error(1)
}

func (m *MockService) ChangePlan(ctx context.Context, userID uuid.UUID, priceID string) (*subscription.ChangeResult, error) {
	args := m.Called(ctx, userID, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ChangeResult), args.Error(1)
}

func (m *MockService) CancelScheduledChange(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func (m *MockService) SyncCatalog(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
