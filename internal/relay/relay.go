// Package relay mirrors broadcast events onto a Redis pub/sub channel so
// processes outside this server can follow the fleet.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"droneSurveyManagement/internal/broadcast"
)

const publishTimeout = 2 * time.Second

// Format selects the payload encoding published on the channel.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Relay publishes events from a bounded queue. Events that arrive while the
// queue is full are dropped.
type Relay struct {
	rdb     *redis.Client
	channel string
	format  Format
	queue   chan []byte
	logger  *slog.Logger
}

var _ broadcast.Mirror = (*Relay)(nil)

func New(opt *redis.Options, channel string, format Format, buffer int, logger *slog.Logger) *Relay {
	if format == "" {
		format = FormatJSON
	}
	return &Relay{
		rdb:     redis.NewClient(opt),
		channel: channel,
		format:  format,
		queue:   make(chan []byte, buffer),
		logger:  logger,
	}
}

// Encode renders ev in format. Msgpack payloads carry the same document as
// the JSON form, so paths stay GeoJSON in both.
func Encode(ev broadcast.Event, format Format) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil || format != FormatMsgpack {
		return b, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	return msgpack.Marshal(doc)
}

// Mirror queues ev for publishing.
func (r *Relay) Mirror(_ context.Context, ev broadcast.Event) {
	b, err := Encode(ev, r.format)
	if err != nil {
		r.logger.Warn("relay encode failed", slog.String("type", ev.Kind()), slog.Any("error", err))
		return
	}
	select {
	case r.queue <- b:
	default:
		r.logger.Warn("relay queue full, event dropped", slog.String("type", ev.Kind()))
	}
}

// Run publishes queued events until ctx is done, then closes the client.
func (r *Relay) Run(ctx context.Context) error {
	defer r.rdb.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-r.queue:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := r.rdb.Publish(pctx, r.channel, b).Err(); err != nil {
				r.logger.Warn("relay publish failed", slog.String("channel", r.channel), slog.Any("error", err))
			}
			cancel()
		}
	}
}

// Ping checks the connection to Redis.
func (r *Relay) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
