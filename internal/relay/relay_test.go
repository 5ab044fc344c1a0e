package relay

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T, addr string) *Relay {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return New(client, "", &logger)
}

type recorder struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recorder) notify(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestRelay_ForwardsRemoteChangesOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newRelay(t, mr.Addr())
	b := newRelay(t, mr.Addr())
	require.NotEqual(t, a.Origin(), b.Origin())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got recorder
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, got.notify) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Publish(ctx, 9))
	require.NoError(t, a.Publish(ctx, 7))
	mr.Publish(DefaultChannel, "not json")

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{7}, got.snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelay_PublishFailsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	r := newRelay(t, mr.Addr())
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, r.Publish(ctx, 1))
}
