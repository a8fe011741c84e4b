package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"barberq/internal/queue"
)

const publishTimeout = 2 * time.Second

// ShopTopic is the pub/sub channel carrying every ticket change for a shop.
// Each event is published exactly once, on its shop's channel; finer-grained
// filtering happens at the subscriber.
func ShopTopic(shopID string) string {
	return fmt.Sprintf("barberq:shop:%s", shopID)
}

const shopTopicPattern = "barberq:shop:*"

// RedisBus publishes ticket change events over redis pub/sub. Publishing is
// fire-and-forget: a failed publish is logged and the mutation that produced
// it stays committed.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisBus(client *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{client: client, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, event queue.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("event marshal failed", "type", event.Type, "ticket_id", event.Ticket.TicketID, "error", err)
		return
	}

	// Detach from the request context so a canceled request does not drop
	// the event for a mutation that already committed.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := b.client.Publish(pubCtx, ShopTopic(event.Ticket.ShopID), payload).Err(); err != nil {
		b.log.Error("event publish failed", "type", event.Type, "ticket_id", event.Ticket.TicketID, "error", err)
	}
}

// Subscribe returns a channel of decoded events for every shop. The channel
// closes when ctx is canceled. Undecodable payloads are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context) <-chan queue.ChangeEvent {
	sub := b.client.PSubscribe(ctx, shopTopicPattern)
	out := make(chan queue.ChangeEvent, 64)

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event queue.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.log.Warn("event decode failed", "channel", msg.Channel, "error", err)
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
	return out
}
