package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to the JetStream subjects pushed by the
// simulation driver and feeds raw messages into the processing loop via
// messageChan. NATS JetStream is the high-throughput ingestion surface;
// the HTTP API covers manual and synchronous use.
type NATSSubscriber struct {
	js          jetstream.JetStream
	messageChan chan<- RawMessage
	consumers   []jetstream.ConsumeContext
}

// RawMessage is a received-but-unparsed message, ready for the processor
// to dedup, parse, and apply to the engine.
type RawMessage struct {
	Subject    string
	Data       []byte
	ReceivedAt time.Time
	AckFunc    func() // ACK after successful (or permanently failed) processing
	NakFunc    func() // NAK on transient failure, message will be redelivered
}

// SubjectConfig maps a NATS subject to a command type.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard inbound subject configuration: one
// subject per driver push, each with its own durable consumer.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "market.env.sync", CommandType: CommandEnvSync, ConsumerName: "ledger-env-sync", StreamName: "MARKET_ENV"},
		{Subject: "market.oracle.prices", CommandType: CommandPriceBatch, ConsumerName: "ledger-oracle-prices", StreamName: "MARKET_ORACLE"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, messageChan chan<- RawMessage) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		messageChan: messageChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				Subject:    msg.Subject(),
				Data:       msg.Data(),
				ReceivedAt: time.Now(),
				AckFunc:    func() { msg.Ack() },
				NakFunc:    func() { msg.Nak() },
			}

			select {
			case ns.messageChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required inbound JetStream streams if they
// don't exist. Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "MARKET_ENV",
			Subjects:  []string{"market.env.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARKET_ORACLE",
			Subjects:  []string{"market.oracle.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
