package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgclass/internal/model"
)

type fakeChannel struct {
	declares   int
	published  []amqp.Publishing
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declares++
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) IsClosed() bool { return f.closed }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type channelFactory struct {
	opened []*fakeChannel
}

func (f *channelFactory) open() (channel, error) {
	ch := &fakeChannel{}
	f.opened = append(f.opened, ch)
	return ch, nil
}

func testEvent(id string) model.PredictionEvent {
	return model.PredictionEvent{
		ID:         id,
		Filename:   "pet.png",
		ClassLabel: "cats",
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublisherReusesChannel(t *testing.T) {
	factory := &channelFactory{}
	pub := newPredictionPublisher("predictions", factory.open)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, pub.Publish(context.Background(), testEvent(id)))
	}

	require.Len(t, factory.opened, 1)
	ch := factory.opened[0]
	assert.Equal(t, 1, ch.declares)
	require.Len(t, ch.published, 3)
	assert.Equal(t, "c", ch.published[2].MessageId)
}

func TestPublisherReopensBrokenChannel(t *testing.T) {
	factory := &channelFactory{}
	pub := newPredictionPublisher("predictions", factory.open)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, testEvent("a")))
	factory.opened[0].publishErr = errors.New("channel reset")
	assert.Error(t, pub.Publish(ctx, testEvent("b")))
	assert.True(t, factory.opened[0].closed)

	require.NoError(t, pub.Publish(ctx, testEvent("c")))
	require.Len(t, factory.opened, 2)
	assert.Equal(t, 1, factory.opened[1].declares)

	// A channel closed by the broker is replaced as well.
	factory.opened[1].closed = true
	require.NoError(t, pub.Publish(ctx, testEvent("d")))
	assert.Len(t, factory.opened, 3)
}

func TestPublisherClose(t *testing.T) {
	factory := &channelFactory{}
	pub := newPredictionPublisher("predictions", factory.open)

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), testEvent("a")), errPublisherClosed)
	assert.Empty(t, factory.opened)

	pub = newPredictionPublisher("predictions", factory.open)
	require.NoError(t, pub.Publish(context.Background(), testEvent("a")))
	require.NoError(t, pub.Close())
	assert.True(t, factory.opened[0].closed)
}

func TestEventPublishing(t *testing.T) {
	event := testEvent("evt-1")
	msg, err := eventPublishing(event)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)
	assert.Equal(t, predictionEventType, msg.Type)
	assert.True(t, event.CreatedAt.Equal(msg.Timestamp))

	var decoded model.PredictionEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "pet.png", decoded.Filename)
	assert.Equal(t, "cats", decoded.ClassLabel)
}
