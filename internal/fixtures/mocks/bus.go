package mocks

import (
	"context"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/pkg/eventbus"
	"github.com/stretchr/testify/mock"
)

// Bus is a mock eventbus.Bus.
type Bus struct {
	mock.Mock
}

func (_m *Bus) Emit(ctx context.Context, event events.Event) error {
	ret := _m.Called(ctx, event)
	if rf, ok := ret.Get(0).(func(context.Context, events.Event) error); ok {
		return rf(ctx, event)
	}
	return ret.Error(0)
}

func (_m *Bus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	_m.Called(eventType, handler)
}

// NewBus creates a Bus mock that asserts its expectations on cleanup.
func NewBus(t interface {
	mock.TestingT
	Cleanup(func())
}) *Bus {
	m := &Bus{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ eventbus.Bus = (*Bus)(nil)
