package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-obe/internal/logger"
)

const DefaultChannel = "obe:notifications"

// RedisDispatcher publishes notifications as JSON on a pub/sub channel.
type RedisDispatcher struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisDispatcher(addr, channel string, log *logger.Logger) (*RedisDispatcher, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisDispatcher{log: log.With("service", "RedisDispatcher"), rdb: rdb, channel: channel}, nil
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, m Message) error {
	if d == nil || d.rdb == nil {
		return fmt.Errorf("redis dispatcher not initialized")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return d.rdb.Publish(ctx, d.channel, raw).Err()
}

// Subscribe forwards published notifications to onMsg until ctx is done.
func (d *RedisDispatcher) Subscribe(ctx context.Context, onMsg func(Message)) error {
	if d == nil || d.rdb == nil {
		return fmt.Errorf("redis dispatcher not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := d.rdb.Subscribe(ctx, d.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					d.log.Warn("bad notification payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (d *RedisDispatcher) Close() error {
	if d == nil || d.rdb == nil {
		return nil
	}
	return d.rdb.Close()
}
