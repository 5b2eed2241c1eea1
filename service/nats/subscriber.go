package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions selects which events to stream.
type SubscribeOptions struct {
	// Kind filters to one event kind; empty means all kinds.
	Kind string
	// Durable names a consumer that survives restarts.
	Durable string
}

// Subscribe streams oracle events to handle until ctx is done. Malformed
// messages are logged and acknowledged.
func Subscribe(ctx context.Context, natsURL string, opts SubscribeOptions, logger *slog.Logger, handle func(*OracleEvent)) error {
	nc, err := nats.Connect(natsURL, nats.Name("bukeqi-subscriber"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := StreamSubjects
	if opts.Kind != "" {
		subject = fmt.Sprintf("%s.%s", SubjectPrefix, opts.Kind)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if opts.Durable != "" {
		consumerConfig.Durable = opts.Durable
		consumerConfig.Name = opts.Durable
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var event OracleEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			logger.Warn("failed to parse oracle event", "subject", msg.Subject(), "error", err)
			return
		}
		handle(&event)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}
