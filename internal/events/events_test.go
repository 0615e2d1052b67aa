package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishToTypeAndAll(t *testing.T) {
	bus := NewEventBus()
	var typed, all []string

	bus.Subscribe(SeatAssigned, func(e Event) error {
		typed = append(typed, e.Type)
		return nil
	})
	bus.SubscribeAll(func(e Event) error {
		all = append(all, e.Type)
		return nil
	})

	bus.Publish(NewSeatEvent(SeatAssigned, SeatChange{SeatID: "s1", GuestName: "Alice"}))
	bus.Publish(Event{Type: SeatCleared})

	assert.Equal(t, []string{SeatAssigned}, typed)
	assert.Equal(t, []string{SeatAssigned, SeatCleared}, all)
}

func TestEventBus_OnError(t *testing.T) {
	bus := NewEventBus()
	var failed []string
	bus.OnError(func(e Event, err error) {
		failed = append(failed, e.Type+": "+err.Error())
	})
	bus.SubscribeAll(func(Event) error { return errors.New("broker down") })

	bus.Publish(Event{Type: SeatPresence})
	assert.Equal(t, []string{"seat.presence: broker down"}, failed)
}

func TestSeatEventRoundTrip(t *testing.T) {
	e := NewSeatEvent(SeatRenamed, SeatChange{TableID: "t1", SeatID: "s2", GuestName: "Bob", Actor: "staff"})
	assert.False(t, e.CreatedAt.IsZero())

	c, err := e.SeatChange()
	require.NoError(t, err)
	assert.Equal(t, "Bob", c.GuestName)
	assert.Equal(t, "staff", c.Actor)
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPForwarder(t *testing.T) {
	ch := &fakeChannel{}
	fwd, err := newAMQPForwarder(ch, "seating.events")
	require.NoError(t, err)
	assert.Equal(t, []string{"seating.events:topic"}, ch.declared)

	bus := NewEventBus()
	bus.SubscribeAll(fwd.Handle)
	bus.Publish(NewSeatEvent(SeatCleared, SeatChange{SeatID: "s9"}))

	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"seating.events/seat.cleared"}, ch.keys)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Contains(t, string(ch.published[0].Body), `"seat_id":"s9"`)

	ch.err = errors.New("channel closed")
	assert.ErrorContains(t, fwd.Handle(Event{Type: SeatPresence}), "publish seat.presence")

	require.NoError(t, fwd.Close())
	assert.True(t, ch.closed)
}
