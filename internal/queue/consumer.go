package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/metrics"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Dispatch runs the processor method that serves queueName.
func (p *Processor) Dispatch(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case IngestQueue:
		return p.ProcessIngestMessage(ctx, body)
	case DeleteQueue:
		return p.ProcessDeleteMessage(ctx, body)
	default:
		return fmt.Errorf("no handler for queue %s", queueName)
	}
}

// Consume reads every queue in queueNames on ch and handles one delivery at
// a time across all of them. It returns when ctx is done or a delivery
// channel closes.
func Consume(ctx context.Context, ch *amqp091.Channel, p *Processor, queueNames []string) error {
	if err := ch.Qos(1, 0, true); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	type queuedMessage struct {
		msg       amqp091.Delivery
		queueName string
	}
	messages := make(chan queuedMessage)

	g, ctx := errgroup.WithContext(ctx)
	for _, queueName := range queueNames {
		deliveries, err := ch.Consume(
			queueName,
			queueName+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queueName, err)
		}

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					logger.Info("[Queue] Stopping consumer", "queue", queueName)
					return nil
				case msg, ok := <-deliveries:
					if !ok {
						return fmt.Errorf("delivery channel for %s closed", queueName)
					}
					select {
					case messages <- queuedMessage{msg: msg, queueName: queueName}:
					case <-ctx.Done():
						_ = msg.Nack(false, true)
						return nil
					}
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				logger.Info("[Queue] Stopping message processor")
				return nil
			case qm := <-messages:
				start := time.Now()
				logger.Info("[Queue] Received message", "queue", qm.queueName)

				err := p.Dispatch(ctx, qm.queueName, qm.msg.Body)
				metrics.QueueMessages.WithLabelValues(qm.queueName, metrics.Result(err)).Inc()
				if err != nil {
					logger.Error("[Queue] Error processing message", "queue", qm.queueName, "err", err)
					HandleProcessingError(ch, qm.msg, qm.queueName, err)
					continue
				}
				if err := qm.msg.Ack(false); err != nil {
					logger.Error("[Queue] Failed to ack message", "err", err)
				}
				logger.Info("[Queue] Message processed", "queue", qm.queueName, "duration", time.Since(start).Round(time.Millisecond))
			}
		}
	})

	return g.Wait()
}
