package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/kafkax"
	otelx "github.com/TonyIlliano/Smallbizagent1-sub000/libs/otel"
)

const (
	defaultPollEvery = 2 * time.Second
	defaultBatchSize = 50
)

// PublisherConfig configures the outbox drain loop. Brokers is a
// comma-separated list; empty disables publishing entirely.
type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

// Publisher polls the outbox table and relays staged events to Kafka.
// The event type doubles as the topic name, so the coordinator never
// talks to Kafka directly.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	p := &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
	if p.pollEvery <= 0 {
		p.pollEvery = defaultPollEvery
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	return p
}

// Run drains the outbox until ctx is cancelled. Safe to run as a
// goroutine next to the HTTP server.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  p.brokers,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.drain(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			} else if n > 0 {
				p.logger.Debug("outbox drained", "events", n)
			}
		}
	}
}

// drain claims one batch, writes each event to its topic, and marks the
// whole batch published in the same transaction. An undelivered message
// aborts the batch; the rows unlock on rollback and are retried on the
// next tick, so consumers must dedupe on event_id.
func (p *Publisher) drain(ctx context.Context, writer *kafka.Writer) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		if err := writer.WriteMessages(ctx, p.message(ctx, rec)); err != nil {
			return 0, err
		}
		ids = append(ids, rec.ID)
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(ids), tx.Commit(ctx)
}

func (p *Publisher) message(ctx context.Context, rec Record) kafka.Message {
	msg := kafka.Message{
		Topic: rec.EventType,
		Key:   []byte(rec.AggregateID),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.EventType)},
		},
	}
	msgCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}
