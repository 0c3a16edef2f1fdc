package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"family_messaging_service/internal/chat/domain"
	"family_messaging_service/pkg/logger"
)

// UserChannel is the per-user fan-out channel name. Every event a viewer
// may see is published here; connections filter by subscribed chat.
func UserChannel(userID string) string {
	return fmt.Sprintf("chat:user:%s", userID)
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client redis.UniversalClient
	ctx    context.Context
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		ctx:    context.Background(),
	}
}

// Publish serialize the message and publish it on the channel
func (r *RedisPubSub) Publish(channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, channel, data).Err()
}

// Subscribe listen on the channel and hand each decoded event to handler
// until ctx is cancelled
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(evt domain.Event)) error {
	sub := r.client.Subscribe(r.ctx, channel)
	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var evt domain.Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					logger.Log.Error("decode event err :", zap.String("err", err.Error()))
					continue
				}
				handler(evt)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
				sub.Close()
			}
		}
	}()
	return nil
}
