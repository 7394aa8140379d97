//go:build integration

package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRabbit(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(120 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestRabbitMQPublishesToTopicExchange(t *testing.T) {
	uri := startRabbit(t)

	publisher, err := NewRabbitMQ(uri, "tickets")
	require.NoError(t, err)
	t.Cleanup(publisher.Close)
	require.NoError(t, publisher.Ping(context.Background()))

	conn, err := amqp.Dial(uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "ticket.*", "tickets", false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, publisher.Publish(ctx, "ticket.created", "01HZX", []byte(`{"type":"ticket.created"}`)))

	select {
	case msg := <-deliveries:
		assert.Equal(t, "ticket.created", msg.RoutingKey)
		assert.Equal(t, "01HZX", msg.MessageId)
		assert.Equal(t, "application/json", msg.ContentType)
		assert.JSONEq(t, `{"type":"ticket.created"}`, string(msg.Body))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}
