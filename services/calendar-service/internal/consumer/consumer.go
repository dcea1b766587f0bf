// Package consumer drains the booking service's appointment events and
// hands them to the sync orchestrator. Sync runs here, off the booking
// request path, so a slow provider never delays a confirmation.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/kafkax"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/inbox"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/provider"
	syncpkg "github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/sync"
)

const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
)

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

type Consumer struct {
	reader       *kafka.Reader
	logger       *slog.Logger
	inbox        *inbox.Repository
	orchestrator *syncpkg.Orchestrator
}

func New(logger *slog.Logger, inboxRepo *inbox.Repository, orchestrator *syncpkg.Orchestrator, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:       reader,
		logger:       logger,
		inbox:        inboxRepo,
		orchestrator: orchestrator,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			span.End()
			continue
		}

		if err := c.handle(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var ev appointmentEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Topic, err)
	}
	if ev.AppointmentID == "" {
		return fmt.Errorf("%s payload missing appointment_id", msg.Topic)
	}

	switch msg.Topic {
	case TopicAppointmentBooked:
		results, err := c.orchestrator.SyncAppointment(ctx, ev.AppointmentID)
		if err != nil {
			return err
		}
		c.logResults(ctx, "synced appointment", ev.AppointmentID, results)
	case TopicAppointmentCancelled:
		results, err := c.orchestrator.DeleteAppointment(ctx, ev.AppointmentID)
		if err != nil {
			return err
		}
		c.logResults(ctx, "removed cancelled appointment", ev.AppointmentID, results)
	default:
		c.logger.Warn("unexpected topic", "topic", msg.Topic)
	}
	return nil
}

func (c *Consumer) logResults(ctx context.Context, what, appointmentID string, results map[provider.Kind]syncpkg.ProviderResult) {
	for kind, res := range results {
		if !res.Attempted {
			continue
		}
		if res.Err != nil {
			c.logger.ErrorContext(ctx, what+" failed for provider",
				"appointment_id", appointmentID, "provider", kind, "err", res.Err)
			continue
		}
		c.logger.InfoContext(ctx, what,
			"appointment_id", appointmentID, "provider", kind, "event_id", res.EventID)
	}
}
