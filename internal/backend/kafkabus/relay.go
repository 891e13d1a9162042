package kafkabus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
)

// Relay consumes the durable event topic and republishes each event to its
// surface's live feed channel. The feed is the only delivery path sessions
// listen on; there is no polling fallback.
type Relay struct {
	reader *kafka.Reader
	feed   backend.Feed
	log    *zap.SugaredLogger
}

func NewRelay(brokers []string, topic, groupID string, feed backend.Feed, log *zap.SugaredLogger) *Relay {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Relay{reader: r, feed: feed, log: log}
}

func (r *Relay) Run(ctx context.Context) {
	for {
		m, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Errorw("kafka read", "err", err)
			time.Sleep(time.Second)
			continue
		}
		ev, err := backend.DecodeEvent(m.Value)
		if err != nil {
			r.log.Warnw("relay event dropped", "err", err)
			continue
		}
		if err := r.feed.Publish(ctx, ev.SurfaceID, ev); err != nil {
			r.log.Errorw("feed publish", "surface", ev.SurfaceID, "err", err)
		}
	}
}

func (r *Relay) Close() error { return r.reader.Close() }
