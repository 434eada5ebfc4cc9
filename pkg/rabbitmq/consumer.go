package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConsumerConfig names a durable queue and the exchange bindings feeding it.
type ConsumerConfig struct {
	Exchange    string
	Queue       string
	BindingKeys []string
	Prefetch    int
}

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     ConsumerConfig
	logger  *zap.Logger
}

func NewConsumer(url string, cfg ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := declareExchange(ch, cfg.Exchange); err != nil {
		return fail(err)
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("rabbitmq queue declare: %w", err))
	}

	for _, key := range cfg.BindingKeys {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			return fail(fmt.Errorf("rabbitmq queue bind %s: %w", key, err))
		}
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("rabbitmq qos: %w", err))
		}
	}

	return &Consumer{conn: conn, channel: ch, cfg: cfg, logger: logger.Named("consumer").With(zap.String("queue", cfg.Queue))}, nil
}

func (c *Consumer) Consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.channel.Consume(
		c.cfg.Queue,
		"",    // consumer tag
		false, // auto-ack = false, we ack manually after processing
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume: %w", err)
	}

	c.logger.Info("consuming", zap.Strings("bindings", c.cfg.BindingKeys))
	return msgs, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
