package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ShopPlatform/pkg/logger"
	"ShopPlatform/pkg/validation"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/metrics"
	"ShopPlatform/services/tenant-broker/internal/producer/rabbitmq"
	"ShopPlatform/services/tenant-broker/internal/repository"
)

// Шаги подготовки хранилища, попадают в логи, метрики и события
const (
	StepCreateUnit      = "create_unit"
	StepCreatePrincipal = "create_principal"
	StepGrantOwnership  = "grant_ownership"
	StepOpenSession     = "open_session"
	StepPermissionProbe = "permission_probe"
	StepBaselineSchema  = "baseline_schema"
)

// ProbeTable имя таблицы пробной проверки прав
const ProbeTable = "permission_probe"

// Provisioner подготовка изолированного хранилища арендатора по принципу "все или ничего".
// Запись реестра создается первой и удаляется, если любой последующий шаг не удался.
type Provisioner struct {
	registry  repository.TenantRegistry
	driver    repository.StorageDriver
	vault     SecretVault
	events    rabbitmq.EventPublisher
	metrics   *metrics.BrokerMetrics
	logger    logger.Logger
	validator *validation.Validator
	endpoint  StorageEndpoint
	schema    []string
	now       func() time.Time
}

// ProvisionerDeps зависимости Provisioner
type ProvisionerDeps struct {
	Registry repository.TenantRegistry
	Driver   repository.StorageDriver
	Vault    SecretVault
	Events   rabbitmq.EventPublisher
	Metrics  *metrics.BrokerMetrics
	Logger   logger.Logger
	Endpoint StorageEndpoint
	// Schema команды начальной схемы базы арендатора
	Schema []string
}

// NewProvisioner создает Provisioner
func NewProvisioner(deps ProvisionerDeps) *Provisioner {
	events := deps.Events
	if events == nil {
		events = rabbitmq.NoopPublisher{}
	}
	return &Provisioner{
		registry:  deps.Registry,
		driver:    deps.Driver,
		vault:     deps.Vault,
		events:    events,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		validator: validation.NewValidator(),
		endpoint:  deps.Endpoint,
		schema:    deps.Schema,
		now:       time.Now,
	}
}

// Admit проверки допуска без побочных эффектов. Хранилище не вызывается.
func (p *Provisioner) Admit(req domain.ProvisionRequest) error {
	checks := []func() error{
		func() error {
			return p.validator.ValidateRequiredFields(map[string]string{
				"email":        req.Email,
				"password":     req.Password,
				"login_name":   req.LoginName,
				"login_secret": req.LoginSecret,
			})
		},
		func() error { return p.validator.ValidateEmail(req.Email) },
		func() error { return p.validator.ValidateUnitName(req.Email) },
		func() error { return p.validator.ValidatePrincipalName(req.LoginName) },
		func() error { return p.validator.ValidateSecretStrength(req.LoginSecret) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
	}
	return nil
}

// Provision регистрирует арендатора и подготавливает его хранилище.
// Повторный вызов для уже зарегистрированного email возвращает AlreadyProvisioned
// и не выполняет ни одного шага подготовки.
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisionRequest) (*domain.ProvisionResult, error) {
	req.Email = validation.NormalizeEmail(req.Email)
	req.LoginName = strings.TrimSpace(req.LoginName)

	ctx, span := p.metrics.Tracer().Start(ctx, "tenant.provision")
	defer span.End()

	if err := p.Admit(req); err != nil {
		p.metrics.ProvisioningOutcome(metrics.OutcomeRejected)
		return nil, err
	}

	existing, err := p.registry.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	if existing != nil {
		p.metrics.ProvisioningOutcome(metrics.OutcomeAlreadyProvisioned)
		return &domain.ProvisionResult{Identity: existing, AlreadyProvisioned: true}, nil
	}

	claimed, err := p.registry.FindByLoginName(ctx, req.LoginName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	if claimed != nil && claimed.Email == req.Email {
		// Запись появилась между двумя чтениями реестра
		p.metrics.ProvisioningOutcome(metrics.OutcomeAlreadyProvisioned)
		return &domain.ProvisionResult{Identity: claimed, AlreadyProvisioned: true}, nil
	}
	if claimed != nil {
		p.metrics.ProvisioningOutcome(metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrLoginNameUnavailable)
	}

	encrypted, err := p.vault.EncryptSecret(req.LoginSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoFailure, err)
	}
	passwordHash, err := p.vault.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &domain.TenantIdentity{
		Email:                req.Email,
		StorageLoginName:     req.LoginName,
		EncryptedLoginSecret: encrypted,
		PasswordHash:         passwordHash,
		CreatedAt:            p.now().UTC(),
	}

	if err := p.registry.Create(ctx, identity); err != nil {
		if errors.Is(err, domain.ErrTenantExists) {
			return p.resolveCreateConflict(ctx, req)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}

	log := p.logger.With(
		logger.CtxField(ctx),
		logger.String("unit", identity.UnitName()),
		logger.String("principal", identity.StorageLoginName),
	)

	tables, step, err := p.provisionStorage(ctx, identity, req.LoginSecret)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, step)
		p.compensate(ctx, log, identity, step, err)
		return nil, domain.ErrProvisioningFailed
	}

	p.metrics.ProvisioningOutcome(metrics.OutcomeProvisioned)
	log.Info("Tenant provisioned", logger.Int("tables", tables))

	p.publish(ctx, log, rabbitmq.TenantEvent{
		Type:      rabbitmq.EventTenantProvisioned,
		Email:     identity.Email,
		Unit:      identity.UnitName(),
		Principal: identity.StorageLoginName,
	})

	return &domain.ProvisionResult{Identity: identity, TablesCreated: tables}, nil
}

// resolveCreateConflict параллельная регистрация того же email уже выиграла гонку
func (p *Provisioner) resolveCreateConflict(ctx context.Context, req domain.ProvisionRequest) (*domain.ProvisionResult, error) {
	winner, err := p.registry.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	if winner == nil {
		// Конфликт по имени роли с другим email
		p.metrics.ProvisioningOutcome(metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrLoginNameUnavailable)
	}
	p.metrics.ProvisioningOutcome(metrics.OutcomeAlreadyProvisioned)
	return &domain.ProvisionResult{Identity: winner, AlreadyProvisioned: true}, nil
}

// provisionStorage шаги 2-5. Возвращает число созданных таблиц и шаг, на котором произошла ошибка.
func (p *Provisioner) provisionStorage(ctx context.Context, identity *domain.TenantIdentity, secret string) (int, string, error) {
	unit, principal := identity.UnitName(), identity.StorageLoginName

	if err := p.step(ctx, StepCreateUnit, func(ctx context.Context) error {
		return p.driver.CreateUnitIfAbsent(ctx, unit)
	}); err != nil {
		return 0, StepCreateUnit, err
	}

	if err := p.step(ctx, StepCreatePrincipal, func(ctx context.Context) error {
		return p.driver.CreatePrincipalIfAbsent(ctx, principal, secret)
	}); err != nil {
		return 0, StepCreatePrincipal, err
	}

	if err := p.step(ctx, StepGrantOwnership, func(ctx context.Context) error {
		return p.driver.GrantOwnership(ctx, unit, principal)
	}); err != nil {
		return 0, StepGrantOwnership, err
	}

	var session repository.TenantSession
	if err := p.step(ctx, StepOpenSession, func(ctx context.Context) error {
		var err error
		session, err = p.driver.OpenAs(ctx, p.endpoint.Descriptor(unit, principal, secret))
		return err
	}); err != nil {
		return 0, StepOpenSession, err
	}
	defer session.Close()

	if err := p.step(ctx, StepPermissionProbe, func(ctx context.Context) error {
		// Пробная таблица могла остаться от прерванной попытки
		for _, statement := range []string{
			"DROP TABLE IF EXISTS " + ProbeTable,
			"CREATE TABLE " + ProbeTable + " (id INT)",
			"DROP TABLE " + ProbeTable,
		} {
			if err := session.Exec(ctx, statement); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return 0, StepPermissionProbe, err
	}

	var created int
	err := p.step(ctx, StepBaselineSchema, func(ctx context.Context) error {
		var firstErr error
		// Ошибка одной таблицы не останавливает создание остальных
		for i, statement := range p.schema {
			if err := session.Exec(ctx, statement); err != nil {
				p.logger.Warn("Baseline statement failed",
					logger.CtxField(ctx),
					logger.String("unit", unit),
					logger.Int("statement", i+1),
					logger.Int("total", len(p.schema)),
					logger.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			created++
		}
		if created != len(p.schema) {
			return fmt.Errorf("created %d of %d tables: %w", created, len(p.schema), firstErr)
		}
		return nil
	})
	if err != nil {
		return created, StepBaselineSchema, err
	}
	return created, "", nil
}

func (p *Provisioner) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.metrics.Tracer().Start(ctx, "tenant.provision."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("step", name))
		p.metrics.StepFailure(name)
		return err
	}
	return nil
}

// compensate удаляет запись реестра после неудачной подготовки.
// База и роль не удаляются: оператор получает событие с именами объектов.
func (p *Provisioner) compensate(ctx context.Context, log logger.Logger, identity *domain.TenantIdentity, step string, cause error) {
	log.Error("Tenant provisioning failed", logger.String("step", step), logger.Error(cause))
	p.metrics.ProvisioningOutcome(metrics.OutcomeFailed)

	// Откат выполняется даже если запрос уже отменен
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.registry.Remove(rollbackCtx, identity); err != nil {
		p.metrics.Rollback(false)
		log.Error("Failed to roll back tenant registration", logger.Error(err))
	} else {
		p.metrics.Rollback(true)
		log.Warn("Tenant registration rolled back", logger.String("step", step))
	}

	p.publish(rollbackCtx, log, rabbitmq.TenantEvent{
		Type:      rabbitmq.EventTenantProvisioningFailed,
		Email:     identity.Email,
		Unit:      identity.UnitName(),
		Principal: identity.StorageLoginName,
		Step:      step,
	})
}

// publish ошибка публикации не влияет на результат операции
func (p *Provisioner) publish(ctx context.Context, log logger.Logger, event rabbitmq.TenantEvent) {
	event.OccurredAt = p.now().UTC()
	if err := p.events.PublishTenantEvent(ctx, event); err != nil {
		log.Warn("Tenant event was not published", logger.String("type", event.Type), logger.Error(err))
	}
}
