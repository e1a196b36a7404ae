// Package relay publishes committed audit outbox entries to Kafka. The
// database write is the durable record; the relay moves entries out of the
// outbox table after the producing transaction has committed, so a Kafka
// outage delays publication without losing records.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"othertales/internal/audit"
	"othertales/internal/platform/config"
	"othertales/internal/platform/metrics"
)

const (
	pollInterval = 2 * time.Second
	batchSize    = 100
)

// OutboxSource is the slice of the audit store the relay needs.
type OutboxSource interface {
	FetchOutbox(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	DeleteOutbox(ctx context.Context, id uuid.UUID) error
}

// producer is the slice of the Kafka client the relay needs. *kgo.Client
// satisfies it.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Relay drains the outbox table into a Kafka topic.
type Relay struct {
	source  OutboxSource
	client  producer
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New connects to Kafka and ensures the audit topic exists. Returns nil when
// no brokers are configured.
func New(ctx context.Context, cfg config.KafkaConfig, source OutboxSource, logger *slog.Logger, m *metrics.Metrics) (*Relay, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, err
	}

	if err := ensureTopic(ctx, client, cfg.AuditTopic); err != nil {
		client.Close()
		return nil, err
	}

	return &Relay{
		source:  source,
		client:  client,
		topic:   cfg.AuditTopic,
		logger:  logger,
		metrics: m,
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return res.Err
		}
	}
	return nil
}

// Run polls the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	entries, err := r.source.FetchOutbox(ctx, batchSize)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		record := &kgo.Record{
			Topic: r.topic,
			Key:   []byte(entry.Key),
			Value: entry.Payload,
		}
		if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			r.metrics.OutboxRelayErrors.Inc()
			r.logger.Error("publish audit event", "event_type", entry.EventType, "error", err)
			return err
		}
		if err := r.source.DeleteOutbox(ctx, entry.ID); err != nil {
			return err
		}
		r.metrics.OutboxRelayed.Inc()
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (r *Relay) Close() {
	r.client.Close()
}
