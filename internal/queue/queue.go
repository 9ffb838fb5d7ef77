package queue

import (
	"fmt"
	"time"

	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	IngestQueue = "ingest_queue"
	DeleteQueue = "delete_queue"

	// EventExchange receives graph.* domain events.
	EventExchange = "valley_events"

	// maxRetries is how often a message is re-queued before it is parked in
	// the dead-letter queue.
	maxRetries = 10
)

// Queues lists every work queue the worker consumes.
var Queues = []string{IngestQueue, DeleteQueue}

// Publisher is the publishing half of *amqp091.Channel.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Enabled reports whether a broker is configured.
func Enabled() bool {
	return util.GetEnv("RABBITMQ_HOST") != ""
}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("[Queue] Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares the event exchange and, for every name, the durable
// work queue plus its _retry (TTL, dead-letters back into the work queue)
// and _dlq companions.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		EventExchange, // name
		"topic",       // type
		true,          // durable
		false,         // autoDelete
		false,         // internal
		false,         // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", EventExchange, err)
	}

	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", retryName, err)
		}
	}

	logger.Debug("[Queue] Queues declared", "queues", queueNames)
	return nil
}

// PublishFIFO sends data to a work queue through the default exchange.
func PublishFIFO(p Publisher, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return p.Publish(
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

// PublishTopic sends data to EventExchange under topic.
func PublishTopic(p Publisher, topic string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return p.Publish(
		EventExchange,
		topic,
		false,
		false,
		publishing,
	)
}
