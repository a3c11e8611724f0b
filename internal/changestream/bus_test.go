package changestream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus(10)
	sub := bus.Subscribe(TableMemory)
	defer sub.Close()

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		bus.Publish(Event{ID: id, Action: ActionCreate, Table: TableMemory})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range ids {
		evt, lagged, err := sub.Recv(ctx)
		require.NoError(t, err)
		require.False(t, lagged)
		require.Equal(t, want, evt.ID)
	}
}

func TestSubscribeTableFilter(t *testing.T) {
	bus := NewBus(10)
	sub := bus.Subscribe(TableEntity)
	defer sub.Close()

	bus.Publish(Event{ID: "m1", Table: TableMemory, Action: ActionCreate})
	bus.Publish(Event{ID: "e1", Table: TableEntity, Action: ActionCreate})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	evt, _, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "e1", evt.ID)
}

func TestLagSignal(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(Event{ID: "1"})
	bus.Publish(Event{ID: "2"}) // dropped, buffer full

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, lagged, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.True(t, lagged)
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := sub.Recv(ctx)
	require.Error(t, err)
}
