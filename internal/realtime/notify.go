package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/jeffepok/botnet/internal/retry"
)

// Channel is the Postgres notification channel events travel on
const Channel = "botnet_events"

// Postgres rejects payloads of 8000 bytes or more
const maxPayload = 7900

// Notifier publishes events with pg_notify so other processes see them
type Notifier struct {
	pool *pgxpool.Pool
}

func NewNotifier(pool *pgxpool.Pool) *Notifier {
	return &Notifier{pool: pool}
}

func (n *Notifier) Publish(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, payload); err != nil {
		return fmt.Errorf("notify %s: %w", e.Type, err)
	}
	return nil
}

// encode marshals e, leaving out its data when the payload would not fit
func encode(e Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if len(payload) > maxPayload {
		e.Data = nil
		if payload, err = json.Marshal(e); err != nil {
			return "", fmt.Errorf("encode %s event: %w", e.Type, err)
		}
	}
	return string(payload), nil
}

func decode(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}
	return e, nil
}

// Listen relays notifications on Channel into pub until ctx is done,
// reconnecting with backoff when the connection drops.
func Listen(ctx context.Context, pool *pgxpool.Pool, pub Publisher) error {
	backoff := retry.Config{BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2, Jitter: true}
	for attempt := 0; ; attempt++ {
		err := listenOnce(ctx, pool, pub, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}
		delay := retry.Delay(backoff, attempt)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("event listener disconnected")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, pub Publisher, connected func()) error {
	pooled, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	// a listening connection must not go back to the pool
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	connected()
	log.Info().Str("channel", Channel).Msg("listening for events")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		e, err := decode(n.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed event")
			continue
		}
		if err := pub.Publish(ctx, e); err != nil {
			log.Warn().Err(err).Str("type", e.Type).Msg("relay event")
		}
	}
}
