package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/internal/consts"
)

type fanoutMessage struct {
	Origin string          `json:"origin"`
	Board  string          `json:"board"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisFanout carries frames between relay instances over Redis pub/sub,
// one channel per board.
type RedisFanout struct {
	client   *redis.Client
	prefix   string
	instance string
	logger   *log.Logger

	once       sync.Once
	subscribed chan struct{}
}

// NewRedisFanout publishes on prefix+boardID. An empty prefix uses the
// default board channel prefix.
func NewRedisFanout(client *redis.Client, prefix string, logger *log.Logger) *RedisFanout {
	if prefix == "" {
		prefix = consts.BoardChannelPrefix
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisFanout{
		client:     client,
		prefix:     prefix,
		instance:   uuid.NewString(),
		logger:     logger,
		subscribed: make(chan struct{}),
	}
}

// Publish sends frame to every other relay instance.
func (f *RedisFanout) Publish(ctx context.Context, boardID string, frame []byte) error {
	payload, err := sonic.Marshal(fanoutMessage{Origin: f.instance, Board: boardID, Frame: frame})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.prefix+boardID, payload).Err()
}

// Run delivers frames published by other instances until ctx ends. The
// subscription is re-established after a second if Redis drops it.
func (f *RedisFanout) Run(ctx context.Context, deliver func(boardID string, frame []byte)) {
	for {
		sub := f.client.PSubscribe(ctx, f.prefix+"*")
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			f.logger.WithError(err).Error("pubsub subscribe failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		f.once.Do(func() { close(f.subscribed) })
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var m fanoutMessage
				if err := sonic.Unmarshal([]byte(msg.Payload), &m); err != nil {
					f.logger.WithError(err).WithField("channel", msg.Channel).Error("unable to parse fanout message")
					continue
				}
				if m.Origin == f.instance {
					continue
				}
				board := m.Board
				if board == "" {
					board = strings.TrimPrefix(msg.Channel, f.prefix)
				}
				deliver(board, m.Frame)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		f.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// Subscribed is closed once Run's first subscription is confirmed.
func (f *RedisFanout) Subscribed() <-chan struct{} {
	return f.subscribed
}
