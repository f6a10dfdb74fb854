package subscriber

import (
	"context"
	"strings"
	"sync"

	"github.com/freightwatch/doomfeed/internal/config"
	redis "github.com/redis/go-redis/v9"
)

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        strings.TrimSpace(cfg.RedisAddr),
		Password:    strings.TrimSpace(cfg.RedisPassword),
		DB:          cfg.RedisDB,
		DialTimeout: cfg.SubscriberDialTimeout,
	})
}

// RedisTransport subscribes to the configured pub/sub channel.
type RedisTransport struct {
	client  *redis.Client
	channel string
}

func NewRedisTransport(client *redis.Client, cfg config.Config) *RedisTransport {
	return &RedisTransport{client: client, channel: cfg.RedisChannel}
}

// Dial opens the subscription and waits for the broker's confirmation, so a
// returned Conn is known to be live.
func (t *RedisTransport) Dial(ctx context.Context) (Conn, error) {
	pubsub := t.client.Subscribe(ctx, t.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return newRedisConn(pubsub), nil
}

// Ping reports broker reachability for the liveness signal.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

type redisConn struct {
	pubsub *redis.PubSub
	out    chan string
	done   chan struct{}
	once   sync.Once
}

func newRedisConn(pubsub *redis.PubSub) *redisConn {
	conn := &redisConn{
		pubsub: pubsub,
		out:    make(chan string),
		done:   make(chan struct{}),
	}
	go pump(pubsub.Channel(), conn.out, conn.done)
	return conn
}

// pump forwards payloads until the source closes or done is signalled, so a
// send nobody is reading cannot block past Close.
func pump(src <-chan *redis.Message, out chan<- string, done <-chan struct{}) {
	defer close(out)
	for msg := range src {
		select {
		case out <- msg.Payload:
		case <-done:
			return
		}
	}
}

func (c *redisConn) Messages() <-chan string { return c.out }

// Close tears down the subscription and releases the pump goroutine even when
// the consumer has already stopped reading.
func (c *redisConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.pubsub.Close()
	})
	return err
}
