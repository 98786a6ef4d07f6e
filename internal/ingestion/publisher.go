package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"MarketLedger/internal/event"
)

// OutboundPublisher re-emits every ledger event to NATS for downstream
// consumers. Publishing is best-effort: the event log is the source of
// truth, so a failed publish is logged and skipped, never retried at the
// cost of ordering.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.Envelope
}

// publishedEvent is the outbound wire format. The payload keeps the same
// snake_case JSON as the persisted event_log row.
type publishedEvent struct {
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	MarketID       *int64      `json:"market_id,omitempty"`
	Caller         string      `json:"caller"`
	Payload        event.Event `json:"payload"`
	StateHash      []byte      `json:"state_hash"`
	PrevHash       []byte      `json:"prev_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan *event.Envelope) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, env); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", env.Sequence, err)
			}
		}
	}
}

// publish sends to market.ledger.events.{event_type}.{market_id|global}.
func (op *OutboundPublisher) publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(publishedEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID,
		Caller:         env.Caller.Hex(),
		Payload:        env.Event,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	scope := "global"
	if env.MarketID != nil {
		scope = strconv.FormatInt(*env.MarketID, 10)
	}
	subject := fmt.Sprintf("market.ledger.events.%s.%s", env.EventType.String(), scope)

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "MARKET_LEDGER_EVENTS",
		Subjects:  []string{"market.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream MARKET_LEDGER_EVENTS")
	return nil
}
