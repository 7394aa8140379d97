package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/events"
)

type recordingPublisher struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey, _ string, body []byte) error {
	p.keys = append(p.keys, routingKey)
	p.bodies = append(p.bodies, body)
	return p.err
}

func TestNotificationServiceForwardsEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	pub := &recordingPublisher{}
	NewNotificationService(dispatcher, pub, zap.NewNop()).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketStatusChanged,
		TicketID: "t-1",
		Payload:  events.TicketStatusChangedPayload{From: "libre", To: "diagnostic"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ticket.status_changed"}, pub.keys)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.bodies[0], &decoded))
	assert.Equal(t, "t-1", decoded["ticketId"])
	assert.Equal(t, "diagnostic", decoded["payload"].(map[string]any)["to"])
}

func TestNotificationServiceWithoutPublisher(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, nil, zap.NewNop()).RegisterHandlers()

	assert.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketDeleted}))
}

func TestNotificationServiceSurfacesBrokerErrors(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	pub := &recordingPublisher{err: errors.New("broker down")}
	NewNotificationService(dispatcher, pub, zap.NewNop()).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketCreated})
	assert.Error(t, err)
}
