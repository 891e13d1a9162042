// Package redisfeed carries the live feed over Redis pub/sub: one channel per
// surface, JSON-encoded row change events. It also mirrors typing signals
// into TTL keys so peer gateway instances can seed their trackers.
package redisfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
	"github.com/upsidedowncan/bank-mannru-sub002/internal/chat"
)

type Feed struct {
	client *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func New(client *redis.Client, prefix string, log *zap.SugaredLogger) *Feed {
	return &Feed{client: client, prefix: prefix, log: log}
}

func (f *Feed) channelKey(surfaceID string) string {
	return fmt.Sprintf("%s:feed:%s", f.prefix, surfaceID)
}

func (f *Feed) typingKey(surfaceID, userID string) string {
	return fmt.Sprintf("%s:typing:%s:%s", f.prefix, surfaceID, userID)
}

func (f *Feed) Publish(ctx context.Context, surfaceID string, ev backend.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channelKey(surfaceID), data).Err()
}

// Subscribe opens a dedicated pub/sub connection for the surface. The
// returned release func closes it; after release the event channel is closed
// and no further events are delivered.
func (f *Feed) Subscribe(ctx context.Context, surfaceID string) (<-chan backend.Event, func(), error) {
	sub := f.client.Subscribe(ctx, f.channelKey(surfaceID))
	// force the subscription to be established before returning so no event
	// published after Subscribe returns can be missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan backend.Event, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			ev, err := backend.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				f.log.Warnw("feed event dropped", "surface", surfaceID, "err", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	release := func() { _ = sub.Close() }
	return out, release, nil
}

// MarkTyping sets the TTL key and publishes a typing event on the surface
// channel. Best effort on both legs.
func (f *Feed) MarkTyping(ctx context.Context, surfaceID, userID string, window time.Duration) error {
	if err := f.client.Set(ctx, f.typingKey(surfaceID, userID), time.Now().Unix(), window).Err(); err != nil {
		return err
	}
	return f.Publish(ctx, surfaceID, backend.Event{
		Op:        backend.OpTypingStarted,
		SurfaceID: surfaceID,
		Typing:    &chat.TypingSignal{SurfaceID: surfaceID, UserID: userID, At: time.Now().UTC()},
	})
}

func (f *Feed) ClearTyping(ctx context.Context, surfaceID, userID string) error {
	if err := f.client.Del(ctx, f.typingKey(surfaceID, userID)).Err(); err != nil {
		return err
	}
	return f.Publish(ctx, surfaceID, backend.Event{
		Op:        backend.OpTypingStopped,
		SurfaceID: surfaceID,
		Typing:    &chat.TypingSignal{SurfaceID: surfaceID, UserID: userID, At: time.Now().UTC()},
	})
}
