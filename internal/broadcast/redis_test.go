package broadcast

import (
	"bitwise74/pulsestream/internal/model"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisBroadcaster) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, newRedisBroadcaster(client)
}

func TestRedisBroadcaster_OnlyOwnerReceives(t *testing.T) {
	_, b := setupMiniRedis(t)
	ctx := context.Background()

	alice, err := b.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer alice.Close()

	bob, err := b.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer bob.Close()

	safe := model.SensitivitySafe
	require.NoError(t, b.Publish(ctx, "alice", Event{
		VideoID:     "v1",
		Status:      model.StatusProcessing,
		Progress:    progress(80),
		Sensitivity: &safe,
	}))

	ev := receive(t, alice)
	assert.Equal(t, "v1", ev.VideoID)
	assert.Equal(t, 80, *ev.Progress)
	require.NotNil(t, ev.Sensitivity)
	assert.Equal(t, model.SensitivitySafe, *ev.Sensitivity)

	assertNothing(t, bob)
}

func TestRedisBroadcaster_UsesOwnerChannel(t *testing.T) {
	mr, b := setupMiniRedis(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []string{"user:alice"}, mr.PubSubChannels(""))

	// Publish from outside the broadcaster the way another instance would
	msg := `{"videoId":"v2","status":"failed","progress":null,"sensitivity":null,"error":"boom"}`
	mr.Publish("user:alice", msg)

	ev := receive(t, sub)
	assert.Equal(t, "v2", ev.VideoID)
	assert.Equal(t, model.StatusFailed, ev.Status)
	assert.Nil(t, ev.Progress)
	require.NotNil(t, ev.Error)
	assert.Equal(t, "boom", *ev.Error)
}

func TestRedisBroadcaster_SkipsMalformedPayload(t *testing.T) {
	mr, b := setupMiniRedis(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish("user:alice", "not json")
	require.NoError(t, b.Publish(ctx, "alice", Event{VideoID: "v3", Status: model.StatusCompleted}))

	assert.Equal(t, "v3", receive(t, sub).VideoID)
}

func TestRedisBroadcaster_CloseEndsSubscription(t *testing.T) {
	_, b := setupMiniRedis(t)

	sub, err := b.Subscribe(context.Background(), "alice")
	require.NoError(t, err)

	sub.Close()

	for range sub.C {
	}
}

func TestEvent_JSONShape(t *testing.T) {
	data, err := json.Marshal(Event{VideoID: "v1", Status: model.StatusProcessing, Progress: progress(0)})
	require.NoError(t, err)

	assert.JSONEq(t, `{"videoId":"v1","status":"processing","progress":0,"sensitivity":null}`, string(data))
}
