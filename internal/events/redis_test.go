package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisBusRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client, nil, nil)

	sub, err := bus.Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	evt := NewPRChange("purchase-order", "po-9", "status")
	bus.Publish(context.Background(), evt)

	select {
	case got := <-sub.C:
		require.Equal(t, evt.ID, got.ID)
		require.Equal(t, TypePRChange, got.Type)
		require.Equal(t, "purchase-order", got.Entity)
		require.Equal(t, "po-9", got.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("event did not arrive through redis")
	}
}

func TestRedisBusSubscribeFailsWhenDown(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client, nil, nil)
	_, err := bus.Subscribe()
	require.Error(t, err)
}
