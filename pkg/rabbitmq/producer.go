package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher канал, способный публиковать с отложенным подтверждением.
// *amqp091.Channel удовлетворяет интерфейсу.
type Publisher interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) (*amqp091.DeferredConfirmation, error)
}

// Producer публикует сообщения и дожидается подтверждения брокера
type Producer struct {
	mu             sync.Mutex
	channel        Publisher
	exchange       string
	confirmTimeout time.Duration
}

// NewProducer создает продюсера поверх открытого подключения
func NewProducer(conn *Connection, cfg *Config) *Producer {
	return NewProducerWithChannel(conn.Channel(), cfg)
}

// NewProducerWithChannel создает продюсера поверх произвольного канала
func NewProducerWithChannel(channel Publisher, cfg *Config) *Producer {
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Producer{channel: channel, exchange: cfg.Exchange, confirmTimeout: timeout}
}

// Publish публикует JSON сообщение с ключом маршрутизации
func (p *Producer) Publish(ctx context.Context, routingKey string, body []byte, options ...PublishOption) error {
	if p.channel == nil {
		return fmt.Errorf("rabbitmq channel is not initialized")
	}

	opts := &PublishOptions{Exchange: p.exchange, RoutingKey: routingKey}
	for _, option := range options {
		option(opts)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    opts.MessageID,
		Headers:      opts.Headers,
	}

	// Канал amqp091 не допускает конкурентной публикации
	p.mu.Lock()
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, opts.Exchange, opts.RoutingKey, opts.Mandatory, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	if confirm == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("message rejected by broker")
	}
	return nil
}

// PublishOptions параметры публикации
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	MessageID  string
	Headers    amqp091.Table
}

// PublishOption настройка публикации
type PublishOption func(*PublishOptions)

func WithExchange(exchange string) PublishOption {
	return func(opts *PublishOptions) { opts.Exchange = exchange }
}

func WithMandatory(mandatory bool) PublishOption {
	return func(opts *PublishOptions) { opts.Mandatory = mandatory }
}

func WithMessageID(id string) PublishOption {
	return func(opts *PublishOptions) { opts.MessageID = id }
}

func WithHeaders(headers amqp091.Table) PublishOption {
	return func(opts *PublishOptions) { opts.Headers = headers }
}
