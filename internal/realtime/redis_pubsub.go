package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pubsubChannel = "jobevents"

type pubsubEnvelope struct {
	Origin  string          `json:"origin"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisPubSub fans job events out across server instances.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
	origin string
}

func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger, origin: uuid.NewString()}
}

// PublishEvent implements Publisher.
func (p *RedisPubSub) PublishEvent(event string, payload []byte) error {
	env, err := json.Marshal(pubsubEnvelope{Origin: p.origin, Event: event, Payload: payload})
	if err != nil {
		return err
	}
	return p.client.Publish(context.Background(), pubsubChannel, env).Err()
}

// Subscribe implements Subscriber. Envelopes published by this instance
// are dropped so local clients do not see the event twice.
func (p *RedisPubSub) Subscribe(handler func(event string, payload []byte)) (func(), error) {
	sub := p.client.Subscribe(context.Background(), pubsubChannel)
	if _, err := sub.Receive(context.Background()); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env pubsubEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					p.logger.Warn("bad pubsub payload", zap.Error(err))
					continue
				}
				if env.Origin == p.origin {
					continue
				}
				handler(env.Event, env.Payload)
			}
		}
	}()
	return func() {
		close(done)
		sub.Close()
	}, nil
}
