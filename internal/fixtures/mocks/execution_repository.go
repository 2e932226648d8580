package mocks

import (
	"context"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/repository/execution"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// ExecutionRepository is a mock execution.Repository.
type ExecutionRepository struct {
	mock.Mock
}

func (_m *ExecutionRepository) Insert(ctx context.Context, rec *rule.ExecutionRecord) (bool, error) {
	ret := _m.Called(ctx, rec)
	return ret.Bool(0), ret.Error(1)
}

func (_m *ExecutionRepository) Complete(ctx context.Context, ruleID, eventID uuid.UUID, c rule.Completion) error {
	ret := _m.Called(ctx, ruleID, eventID, c)
	return ret.Error(0)
}

func (_m *ExecutionRepository) Get(ctx context.Context, ruleID, eventID uuid.UUID) (*rule.ExecutionRecord, error) {
	ret := _m.Called(ctx, ruleID, eventID)
	var r0 *rule.ExecutionRecord
	if v := ret.Get(0); v != nil {
		r0 = v.(*rule.ExecutionRecord)
	}
	return r0, ret.Error(1)
}

func (_m *ExecutionRepository) ListByRule(ctx context.Context, ruleID uuid.UUID) ([]*rule.ExecutionRecord, error) {
	ret := _m.Called(ctx, ruleID)
	var r0 []*rule.ExecutionRecord
	if v := ret.Get(0); v != nil {
		r0 = v.([]*rule.ExecutionRecord)
	}
	return r0, ret.Error(1)
}

func (_m *ExecutionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*rule.ExecutionRecord, error) {
	ret := _m.Called(ctx, before, limit)
	var r0 []*rule.ExecutionRecord
	if v := ret.Get(0); v != nil {
		r0 = v.([]*rule.ExecutionRecord)
	}
	return r0, ret.Error(1)
}

func NewExecutionRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *ExecutionRepository {
	m := &ExecutionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ execution.Repository = (*ExecutionRepository)(nil)
