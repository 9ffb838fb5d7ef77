package queue

import (
	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError routes a failed delivery. Malformed messages and
// messages that exhausted their retries go to the queue's _dlq; everything
// else is re-published to _retry with an incremented x-retries header. The
// original delivery is acked once the copy is published and nacked with
// requeue if publishing fails.
func HandleProcessingError(p Publisher, msg amqp091.Delivery, queueName string, cause error) {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries || common.IsValidation(cause) {
		dlqName := queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries, "err", cause)
		pubErr := p.Publish(
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType: msg.ContentType,
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := p.Publish(
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType: msg.ContentType,
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
