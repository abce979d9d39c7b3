package livefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, addr string) *RedisBroker {
	t.Helper()
	b, err := NewRedisBroker("redis://"+addr, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedisBrokerRelaysBetweenInstances(t *testing.T) {
	s := miniredis.RunT(t)

	writer := newTestBroker(t, s.Addr())
	reader := newTestBroker(t, s.Addr())

	ch, cancel := reader.Subscribe(PageTopic(1, "about"))
	defer cancel()

	require.NoError(t, writer.Publish(context.Background(), PageTopic(1, "about"), []byte(`{"version":2}`)))

	select {
	case got := <-ch:
		assert.JSONEq(t, `{"version":2}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("relayed commit not delivered")
	}
}

func TestRedisBrokerLocalSubscriberSeesOwnPublish(t *testing.T) {
	s := miniredis.RunT(t)
	b := newTestBroker(t, s.Addr())

	ch, cancel := b.Subscribe("page:2:home")
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), "page:2:home", []byte("x")))

	select {
	case got := <-ch:
		assert.Equal(t, []byte("x"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("own publish not delivered")
	}
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker("not a url", zerolog.Nop())
	assert.Error(t, err)
}

func TestNewRedisBrokerUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewRedisBroker("redis://"+addr, zerolog.Nop())
	assert.Error(t, err)
}
