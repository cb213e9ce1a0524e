package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/coachwatch/internal/models"
)

// AlertHandler processes one decoded alert. A returned error redelivers it.
type AlertHandler func(ctx context.Context, alert models.Alert) error

type ConsumeOptions struct {
	// Workers is the number of goroutines handling alerts concurrently.
	Workers int
	// OnlyNew skips alerts published before the consumer was first created.
	OnlyNew bool
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// DecodeAlert parses an alert payload.
func DecodeAlert(data []byte) (models.Alert, error) {
	var a models.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return models.Alert{}, fmt.Errorf("decode alert: %w", err)
	}
	if a.ZoneID == "" || a.IdentityID == "" {
		return models.Alert{}, fmt.Errorf("decode alert: missing zone or identity")
	}
	return a, nil
}

// ConsumeAlerts starts a durable consumer on the ALERTS stream. It returns
// once the consumer exists; processing stops when ctx is cancelled.
func (c *Consumer) ConsumeAlerts(ctx context.Context, consumerName string, handler AlertHandler, opts ConsumeOptions) error {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	stream, err := c.js.Stream(ctx, AlertsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AlertsStreamName, err)
	}

	deliver := jetstream.DeliverAllPolicy
	if opts.OnlyNew {
		deliver = jetstream.DeliverNewPolicy
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: AlertsSubjectBase + ".>",
		DeliverPolicy: deliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, opts.Workers*2)

	// Start consumer fetch loop
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(opts.Workers*2, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch alerts error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Start workers
	for i := 0; i < opts.Workers; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				handle(ctx, workerID, msg, handler)
			}
		}(i)
	}

	slog.Info("alert consumer started", "consumer", consumerName, "workers", opts.Workers, "only_new", opts.OnlyNew)
	return nil
}

func handle(ctx context.Context, workerID int, msg jetstream.Msg, handler AlertHandler) {
	alert, err := DecodeAlert(msg.Data())
	if err != nil {
		// Redelivery cannot fix a bad payload.
		slog.Error("dropping malformed alert", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if err := handler(ctx, alert); err != nil {
		slog.Error("process alert error", "worker", workerID, "alert_id", alert.ID, "subject", msg.Subject(), "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
