package redis

import (
	"context"
	"encoding/json"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

const sessionEventsChannel = "session-events"

type sessionEvents struct {
	client *redislib.Client
	logger *zap.Logger
}

// NewSessionEvents fans session-change events out over Redis pub/sub.
func NewSessionEvents(client *redislib.Client, logger *zap.Logger) repository.SessionEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionEvents{client: client, logger: logger}
}

func (e *sessionEvents) Publish(ctx context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.client.Publish(ctx, sessionEventsChannel, payload).Err()
}

func (e *sessionEvents) Subscribe(ctx context.Context) (<-chan domain.SessionEvent, error) {
	pubsub := e.client.Subscribe(ctx, sessionEventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan domain.SessionEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					e.logger.Warn("malformed session event", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
