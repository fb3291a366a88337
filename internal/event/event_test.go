package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const testEvent Name = "test.event"
const otherEvent Name = "test.other"

func TestEventDispatch(t *testing.T) {
	var event Event
	bus := NewDispatcher()
	bus.ListenFunc(testEvent, func(_ context.Context, ev Event) (err error) {
		event = ev
		return nil
	})
	err := bus.Dispatch(context.Background(), Event{testEvent, 42})
	require.NoError(t, err)
	require.Equal(t, testEvent, event.Name)
	require.Equal(t, 42, event.Data)
}

func TestRemoveListener(t *testing.T) {
	var called bool
	fn := func(context.Context, Event) error {
		called = true
		return nil
	}

	bus := NewDispatcher()
	l := bus.ListenFunc(testEvent, fn)
	bus.RemoveListener(testEvent, l)
	err := bus.Dispatch(context.Background(), Event{testEvent, 42})
	require.NoError(t, err)
	require.False(t, called)
}

func TestListenAny(t *testing.T) {
	var names []Name
	bus := NewDispatcher()
	bus.ListenFunc(Any, func(_ context.Context, ev Event) error {
		names = append(names, ev.Name)
		return nil
	})
	bus.ListenFunc(testEvent, func(_ context.Context, ev Event) error {
		names = append(names, "specific")
		return nil
	})
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: testEvent}))
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: otherEvent}))
	require.Equal(t, []Name{"specific", testEvent, otherEvent}, names)
}

func TestListenAll(t *testing.T) {
	var count int
	bus := NewDispatcher()
	bus.ListenAll(ListenerFunc(func(context.Context, Event) error {
		count++
		return nil
	}), testEvent, otherEvent)
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: testEvent}))
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: otherEvent}))
	require.Equal(t, 2, count)
}

func TestDispatchStopsAtError(t *testing.T) {
	boom := errors.New("boom")
	var second bool
	bus := NewDispatcher()
	bus.ListenFunc(testEvent, func(context.Context, Event) error { return boom })
	bus.ListenFunc(testEvent, func(context.Context, Event) error {
		second = true
		return nil
	})
	err := bus.Dispatch(context.Background(), Event{Name: testEvent})
	require.ErrorIs(t, err, boom)
	require.False(t, second)
}

func TestListenerCanRemoveItself(t *testing.T) {
	bus := NewDispatcher()
	var l Listener
	var calls int
	l = bus.ListenFunc(testEvent, func(context.Context, Event) error {
		calls++
		bus.RemoveListener(testEvent, l)
		return nil
	})
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: testEvent}))
	require.NoError(t, bus.Dispatch(context.Background(), Event{Name: testEvent}))
	require.Equal(t, 1, calls)
}
