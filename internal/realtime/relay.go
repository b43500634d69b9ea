package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const relayQueueSize = 1024

type relayEnvelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
}

// RedisRelay is a Publisher that routes room events through a Redis pub/sub
// channel so that every instance, this one included, dispatches them to its
// local sessions. A single writer goroutine PUBLISHes in call order and each
// instance consumes the channel in arrival order, which keeps per-room order.
//
// When a PUBLISH fails the event is dispatched locally instead, so sessions
// on this instance still see it.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   *Dispatcher
	out     chan relayEnvelope
	ready   chan struct{}
	seen    *seenSet // message ids fanned out, shared with the Bridge
}

// NewRedisRelay builds a relay over channel that dispatches into local.
// Call Run to start it.
func NewRedisRelay(rdb *redis.Client, channel string, local *Dispatcher) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		out:     make(chan relayEnvelope, relayQueueSize),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Publish queues evt for the relay. It never blocks; when the queue is full
// the event is dropped. The return value is always 0 because deliveries
// happen asynchronously on every instance.
func (r *RedisRelay) Publish(evt Outbound, roomID string, exclude *Session) int {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		log.Error().Err(err).Str("event", evt.Event).Msg("relay: encode event")
		return 0
	}
	env := relayEnvelope{Room: roomID, Event: evt.Event, Data: data}
	if exclude != nil {
		env.Exclude = exclude.ID
	}
	select {
	case r.out <- env:
	default:
		deliveriesDropped.WithLabelValues(evt.Event).Inc()
		log.Warn().Str("event", evt.Event).Str("room_id", roomID).Msg("relay: queue full, event dropped")
	}
	return 0
}

// Run subscribes and pumps events until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub, err := r.subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	close(r.ready)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.writeLoop(ctx) })
	g.Go(func() error { return r.readLoop(ctx, sub) })
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *RedisRelay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	for {
		sub := r.rdb.Subscribe(ctx, r.channel)
		_, err := sub.Receive(ctx)
		if err == nil {
			return sub, nil
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		wait := b.NextBackOff()
		log.Warn().Err(err).Dur("retry_in", wait).Str("channel", r.channel).Msg("relay: subscribe failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *RedisRelay) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.out:
			payload, err := json.Marshal(env)
			if err != nil {
				log.Error().Err(err).Msg("relay: encode envelope")
				continue
			}
			if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Str("room_id", env.Room).Msg("relay: publish failed, dispatching locally")
				r.dispatch(env)
			}
		}
	}
}

func (r *RedisRelay) readLoop(ctx context.Context, sub *redis.PubSub) error {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay: subscription closed")
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Msg("relay: bad envelope")
				continue
			}
			r.dispatch(env)
		}
	}
}

func (r *RedisRelay) dispatch(env relayEnvelope) {
	if env.Event == EventMessageReceived && r.seen != nil {
		var ref struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(env.Data, &ref) == nil && ref.ID != "" {
			r.seen.add(ref.ID)
		}
	}
	evt := Outbound{Event: env.Event}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		evt.Data = env.Data
	}
	r.local.publishExcept(evt, env.Room, env.Exclude)
}
