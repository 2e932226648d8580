package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// PassLock is a mock of the scheduler pass lock.
type PassLock struct {
	mock.Mock
}

func (_m *PassLock) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	ret := _m.Called(ctx, name, ttl)
	var r0 func(context.Context) error
	if v := ret.Get(0); v != nil {
		r0 = v.(func(context.Context) error)
	}
	return r0, ret.Bool(1), ret.Error(2)
}

func NewPassLock(t interface {
	mock.TestingT
	Cleanup(func())
}) *PassLock {
	m := &PassLock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
