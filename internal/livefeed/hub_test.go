package livefeed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageTopic(t *testing.T) {
	assert.Equal(t, "page:3:about", PageTopic(3, "about"))
}

func TestHubDeliversToTopicSubscribersOnly(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	about, cancelAbout := hub.Subscribe("page:1:about")
	defer cancelAbout()
	home, cancelHome := hub.Subscribe("page:1:home")
	defer cancelHome()

	require.NoError(t, hub.Publish(context.Background(), "page:1:about", []byte("v1")))

	assert.Equal(t, []byte("v1"), <-about)
	select {
	case got := <-home:
		t.Fatalf("unexpected delivery %q", got)
	default:
	}
}

func TestHubLatestValueWins(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe("t")
	defer cancel()

	ctx := context.Background()
	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, hub.Publish(ctx, "t", []byte(v)))
	}

	assert.Equal(t, []byte("v3"), <-ch)
	select {
	case got := <-ch:
		t.Fatalf("stale payload %q still queued", got)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe("t")
	assert.Equal(t, 1, hub.Subscribers("t"))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("t"))
	require.NoError(t, hub.Publish(context.Background(), "t", []byte("x")))
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("t")
	require.NoError(t, hub.Close())

	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	assert.ErrorIs(t, hub.Publish(context.Background(), "t", nil), ErrClosed)

	late, _ := hub.Subscribe("t")
	_, ok = <-late
	assert.False(t, ok)
}

func TestHubConcurrentPublish(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe("t")
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.Publish(context.Background(), "t", []byte("x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, []byte("x"), <-ch)
}
