package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []EventType
	d.Subscribe(EventTicketAssigned, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketAssigned}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketDeleted}))
	assert.Equal(t, []EventType{EventTicketAssigned}, got)
}

func TestDispatcherRunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	calls := 0
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDispatcherCatchAllRunsAfterTypedHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var order []string
	d.SubscribeAll(func(_ context.Context, e Event) error {
		order = append(order, "all:"+string(e.Type))
		return nil
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		order = append(order, "typed")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketUpdated}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketDeleted}))
	assert.Equal(t, []string{"typed", "all:ticket.updated", "all:ticket.deleted"}, order)
}

func TestDispatcherRecoversHandlerPanics(t *testing.T) {
	d := NewInMemoryDispatcher()
	ran := false
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { panic("bad handler") })
	d.SubscribeAll(func(context.Context, Event) error {
		ran = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	assert.ErrorContains(t, err, "bad handler")
	assert.True(t, ran)
}
