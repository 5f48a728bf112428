package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ShopPlatform/pkg/logger"
	"ShopPlatform/pkg/rabbitmq"
)

// Типы событий жизненного цикла арендатора. Совпадают с ключом маршрутизации.
const (
	EventTenantProvisioned        = "tenant.provisioned"
	EventTenantProvisioningFailed = "tenant.provisioning_failed"
)

// TenantEvent событие жизненного цикла арендатора.
// Для provisioning_failed поле Step указывает шаг, на котором подготовка остановилась,
// а Unit и Principal позволяют оператору удалить оставшиеся объекты хранилища.
type TenantEvent struct {
	Type       string    `json:"type"`
	Email      string    `json:"email"`
	Unit       string    `json:"unit"`
	Principal  string    `json:"principal"`
	Step       string    `json:"step,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher публикует события арендаторов
type EventPublisher interface {
	PublishTenantEvent(ctx context.Context, event TenantEvent) error
}

// messagePublisher подмножество rabbitmq.Producer
type messagePublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, options ...rabbitmq.PublishOption) error
}

// TenantEventProducer публикует события арендаторов в exchange RabbitMQ
type TenantEventProducer struct {
	producer messagePublisher
	logger   logger.Logger
}

// NewTenantEventProducer создает продюсера событий поверх pkg/rabbitmq
func NewTenantEventProducer(producer messagePublisher, log logger.Logger) *TenantEventProducer {
	return &TenantEventProducer{producer: producer, logger: log}
}

// PublishTenantEvent сериализует событие в JSON и публикует с ключом, равным типу события
func (p *TenantEventProducer) PublishTenantEvent(ctx context.Context, event TenantEvent) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant event: %w", err)
	}

	if err := p.producer.Publish(ctx, event.Type, body, rabbitmq.WithMessageID(uuid.NewString())); err != nil {
		p.logger.Error("Failed to publish tenant event",
			logger.String("type", event.Type),
			logger.String("unit", event.Unit),
			logger.Error(err))
		return fmt.Errorf("failed to publish tenant event: %w", err)
	}

	p.logger.Debug("Tenant event published",
		logger.String("type", event.Type),
		logger.String("unit", event.Unit))
	return nil
}

// NoopPublisher используется, когда RabbitMQ отключен
type NoopPublisher struct{}

func (NoopPublisher) PublishTenantEvent(context.Context, TenantEvent) error { return nil }
