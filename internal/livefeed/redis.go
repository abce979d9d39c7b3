package livefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("livefeed closed")

const channelPrefix = "pages:"

// RedisBroker relays commits through Redis pub/sub so every server instance
// sees every commit. Local delivery goes through an embedded Hub.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	hub    *Hub
	log    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBroker connects to redisURL and starts relaying.
func NewRedisBroker(redisURL string, log zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisBrokerWithClient(redis.NewClient(opts), log)
}

// NewRedisBrokerWithClient starts relaying on an existing client. The broker
// owns the client and closes it on Close.
func NewRedisBrokerWithClient(client *redis.Client, log zerolog.Logger) (*RedisBroker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	ps := client.PSubscribe(ctx, channelPrefix+"*")
	// 等待订阅确认，之后发布的消息不会丢
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return nil, fmt.Errorf("subscribe to redis: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	b := &RedisBroker{
		client: client,
		pubsub: ps,
		hub:    NewHub(),
		log:    log.With().Str("component", "livefeed").Logger(),
		cancel: stop,
	}
	b.wg.Add(1)
	go b.relay(runCtx)
	return b, nil
}

func (b *RedisBroker) relay(ctx context.Context) {
	defer b.wg.Done()
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic := strings.TrimPrefix(msg.Channel, channelPrefix)
			if err := b.hub.Publish(ctx, topic, []byte(msg.Payload)); err != nil {
				b.log.Debug().Err(err).Str("topic", topic).Msg("drop relayed commit")
			}
		}
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, channelPrefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(topic string) (<-chan []byte, func()) {
	return b.hub.Subscribe(topic)
}

func (b *RedisBroker) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()
	_ = b.hub.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
