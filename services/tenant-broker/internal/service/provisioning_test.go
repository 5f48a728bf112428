package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ShopPlatform/pkg/logger"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/producer/rabbitmq"
	"ShopPlatform/services/tenant-broker/internal/service"
	storagePostgres "ShopPlatform/services/tenant-broker/internal/storage/postgres"
)

func validRequest() domain.ProvisionRequest {
	return domain.ProvisionRequest{
		Email:       "a@x.com",
		Password:    "owner-pass",
		LoginName:   "a_login",
		LoginSecret: "Abcdef1!",
	}
}

func TestProvision_Success(t *testing.T) {
	b := newBroker(t)
	session := &fakeSession{}
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", session)

	result, err := b.provisioner.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, result.AlreadyProvisioned)
	assert.Equal(t, len(testSchema), result.TablesCreated)
	assert.Equal(t, 1, b.registry.Len())

	stored, err := b.registry.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Abcdef1!", stored.EncryptedLoginSecret)
	assert.NotEqual(t, "owner-pass", stored.PasswordHash)
	assert.True(t, b.vault.VerifyPassword("owner-pass", stored.PasswordHash))

	// Пробная таблица создается и удаляется до начальной схемы
	require.Len(t, session.statements, 3+len(testSchema))
	assert.Equal(t, "DROP TABLE IF EXISTS "+service.ProbeTable, session.statements[0])
	assert.Equal(t, "CREATE TABLE "+service.ProbeTable+" (id INT)", session.statements[1])
	assert.Equal(t, "DROP TABLE "+service.ProbeTable, session.statements[2])
	assert.True(t, session.closed)

	assert.Equal(t, []string{rabbitmq.EventTenantProvisioned}, b.events.types())
	b.driver.AssertExpectations(t)
}

func TestProvision_NormalizesEmail(t *testing.T) {
	b := newBroker(t)
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", &fakeSession{})

	req := validRequest()
	req.Email = "  A@X.com "
	result, err := b.provisioner.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", result.Identity.Email)
}

func TestProvision_Idempotent(t *testing.T) {
	b := newBroker(t)
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", &fakeSession{})

	_, err := b.provisioner.Provision(context.Background(), validRequest())
	require.NoError(t, err)

	again, err := b.provisioner.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, again.AlreadyProvisioned)
	assert.Equal(t, 1, b.registry.Len())

	b.driver.AssertNumberOfCalls(t, "CreateUnitIfAbsent", 1)
	b.driver.AssertNumberOfCalls(t, "OpenAs", 1)
}

// Scenario D: слабый секрет отклоняется без записей в реестр и вызовов хранилища
func TestProvision_WeakSecretRejected(t *testing.T) {
	b := newBroker(t)

	req := validRequest()
	req.LoginSecret = "abc"
	_, err := b.provisioner.Provision(context.Background(), req)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, b.registry.Len())
	assert.Empty(t, b.driver.Calls)
	assert.Empty(t, b.events.types())
}

func TestProvision_AdmissionRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.ProvisionRequest)
	}{
		{"missing email", func(r *domain.ProvisionRequest) { r.Email = "" }},
		{"malformed email", func(r *domain.ProvisionRequest) { r.Email = "not-an-email" }},
		{"unsafe email", func(r *domain.ProvisionRequest) { r.Email = `a";drop@x.com` }},
		{"missing password", func(r *domain.ProvisionRequest) { r.Password = "" }},
		{"bad login name", func(r *domain.ProvisionRequest) { r.LoginName = "A-Login" }},
		{"reserved login name", func(r *domain.ProvisionRequest) { r.LoginName = "pg_owner" }},
		{"secret without symbol", func(r *domain.ProvisionRequest) { r.LoginSecret = "Abcdefg1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := b.provisioner.Provision(context.Background(), req)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			assert.Equal(t, 0, b.registry.Len())
			assert.Empty(t, b.driver.Calls)
		})
	}
}

func TestProvision_LoginNameTaken(t *testing.T) {
	b := newBroker(t)
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", &fakeSession{})
	_, err := b.provisioner.Provision(context.Background(), validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Email = "b@x.com"
	_, err = b.provisioner.Provision(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, domain.ErrLoginNameUnavailable))
	assert.Equal(t, 1, b.registry.Len())
}

// Одна из N таблиц не создается: реестр откатывается, остальные таблицы все равно пытаются создаться
func TestProvision_PartialSchemaRollsBack(t *testing.T) {
	b := newBroker(t)
	session := &fakeSession{failOn: "employees"}
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", session)

	result, err := b.provisioner.Provision(context.Background(), validRequest())
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, domain.ErrProvisioningFailed))
	assert.Equal(t, 0, b.registry.Len())
	assert.Len(t, session.statements, 3+len(testSchema))

	require.Len(t, b.events.events, 1)
	failed := b.events.events[0]
	assert.Equal(t, rabbitmq.EventTenantProvisioningFailed, failed.Type)
	assert.Equal(t, service.StepBaselineSchema, failed.Step)
	assert.Equal(t, "a@x.com", failed.Unit)
	assert.Equal(t, "a_login", failed.Principal)
}

func TestProvision_StepFailuresRollBack(t *testing.T) {
	storageErr := errors.New("permission denied to create database")

	tests := []struct {
		name  string
		setup func(d *MockStorageDriver)
		step  string
	}{
		{
			name: "create unit",
			setup: func(d *MockStorageDriver) {
				d.On("CreateUnitIfAbsent", mock.Anything, "a@x.com").Return(storageErr)
			},
			step: service.StepCreateUnit,
		},
		{
			name: "create principal",
			setup: func(d *MockStorageDriver) {
				d.On("CreateUnitIfAbsent", mock.Anything, "a@x.com").Return(nil)
				d.On("CreatePrincipalIfAbsent", mock.Anything, "a_login", "Abcdef1!").Return(storageErr)
			},
			step: service.StepCreatePrincipal,
		},
		{
			name: "grant ownership",
			setup: func(d *MockStorageDriver) {
				d.On("CreateUnitIfAbsent", mock.Anything, "a@x.com").Return(nil)
				d.On("CreatePrincipalIfAbsent", mock.Anything, "a_login", "Abcdef1!").Return(nil)
				d.On("GrantOwnership", mock.Anything, "a@x.com", "a_login").Return(storageErr)
			},
			step: service.StepGrantOwnership,
		},
		{
			name: "open session",
			setup: func(d *MockStorageDriver) {
				d.On("CreateUnitIfAbsent", mock.Anything, "a@x.com").Return(nil)
				d.On("CreatePrincipalIfAbsent", mock.Anything, "a_login", "Abcdef1!").Return(nil)
				d.On("GrantOwnership", mock.Anything, "a@x.com", "a_login").Return(nil)
				d.On("OpenAs", mock.Anything, mock.Anything).Return(nil, storageErr)
			},
			step: service.StepOpenSession,
		},
		{
			name: "write permission",
			setup: func(d *MockStorageDriver) {
				d.On("CreateUnitIfAbsent", mock.Anything, "a@x.com").Return(nil)
				d.On("CreatePrincipalIfAbsent", mock.Anything, "a_login", "Abcdef1!").Return(nil)
				d.On("GrantOwnership", mock.Anything, "a@x.com", "a_login").Return(nil)
				d.On("OpenAs", mock.Anything, mock.Anything).Return(&fakeSession{failOn: service.ProbeTable}, nil)
			},
			step: service.StepPermissionProbe,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBroker(t)
			tt.setup(b.driver)

			_, err := b.provisioner.Provision(context.Background(), validRequest())
			require.Error(t, err)
			assert.Equal(t, domain.ErrProvisioningFailed, err, "failure must be opaque")
			assert.Equal(t, 0, b.registry.Len())

			require.Len(t, b.events.events, 1)
			assert.Equal(t, tt.step, b.events.events[0].Step)
			b.driver.AssertExpectations(t)
		})
	}
}

// Отмена запроса не мешает компенсации
func TestProvision_RollbackSurvivesCancellation(t *testing.T) {
	b := newBroker(t)
	ctx, cancel := context.WithCancel(context.Background())

	b.driver.On("CreateUnitIfAbsent", mock.Anything, "a@x.com").
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)

	_, err := b.provisioner.Provision(ctx, validRequest())
	assert.True(t, errors.Is(err, domain.ErrProvisioningFailed))
	assert.Equal(t, 0, b.registry.Len())
}

func TestProvision_RegistryUnavailable(t *testing.T) {
	registry := &MockRegistry{}
	driver := &MockStorageDriver{}
	registry.On("FindByEmail", mock.Anything, "a@x.com").Return(nil, errors.New("connection refused"))

	p := service.NewProvisioner(service.ProvisionerDeps{
		Registry: registry,
		Driver:   driver,
		Vault:    newTestVault(t),
		Metrics:  newTestMetrics(),
		Logger:   logger.NewNop(),
		Endpoint: testEndpoint,
		Schema:   testSchema,
	})

	_, err := p.Provision(context.Background(), validRequest())
	assert.True(t, errors.Is(err, domain.ErrContextUnavailable))
	assert.Empty(t, driver.Calls)
}

// Повторный Create того же email в гонке трактуется как уже выполненная регистрация
func TestProvision_ConcurrentDuplicate(t *testing.T) {
	registry := &MockRegistry{}
	driver := &MockStorageDriver{}
	winner := &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "a_login"}

	registry.On("FindByEmail", mock.Anything, "a@x.com").Return(nil, nil).Once()
	registry.On("FindByLoginName", mock.Anything, "a_login").Return(nil, nil)
	registry.On("Create", mock.Anything, mock.Anything).Return(domain.ErrTenantExists)
	registry.On("FindByEmail", mock.Anything, "a@x.com").Return(winner, nil)

	p := service.NewProvisioner(service.ProvisionerDeps{
		Registry: registry,
		Driver:   driver,
		Vault:    newTestVault(t),
		Metrics:  newTestMetrics(),
		Logger:   logger.NewNop(),
		Endpoint: testEndpoint,
		Schema:   testSchema,
	})

	result, err := p.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, result.AlreadyProvisioned)
	assert.Equal(t, winner, result.Identity)
	assert.Empty(t, driver.Calls)
	registry.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestProvision_ParallelSignupsSingleProvisioning(t *testing.T) {
	b := newBroker(t)
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", &fakeSession{})

	var wg sync.WaitGroup
	results := make([]*domain.ProvisionResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = b.provisioner.Provision(context.Background(), validRequest())
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, r := range results {
		require.NotNil(t, r)
		if !r.AlreadyProvisioned {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, b.registry.Len())
	b.driver.AssertNumberOfCalls(t, "CreateUnitIfAbsent", 1)
}

// Повторная регистрация после частично созданной схемы проходит:
// таблицы первой попытки остаются в базе и не мешают второй
func TestProvision_RetryAfterPartialSchema(t *testing.T) {
	b := newBrokerWithSchema(t, storagePostgres.BaselineSchema)
	unit := newUnitSession()
	unit.timeoutOn("orders")
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", unit)

	result, err := b.provisioner.Provision(context.Background(), validRequest())
	require.ErrorIs(t, err, domain.ErrProvisioningFailed)
	assert.Nil(t, result)
	assert.Equal(t, 0, b.registry.Len())
	assert.True(t, unit.has("customers"))
	assert.False(t, unit.has("orders"))

	result, err = b.provisioner.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, result.AlreadyProvisioned)
	assert.Equal(t, len(storagePostgres.BaselineSchema), result.TablesCreated)
	assert.Equal(t, 1, b.registry.Len())

	for _, table := range []string{"customers", "employees", "categories", "services", "orders", "information"} {
		assert.True(t, unit.has(table), table)
	}
	assert.False(t, unit.has(service.ProbeTable))

	assert.Equal(t, []string{rabbitmq.EventTenantProvisioningFailed, rabbitmq.EventTenantProvisioned}, b.events.types())
	b.driver.AssertNumberOfCalls(t, "CreateUnitIfAbsent", 2)
}

// Пробная таблица, оставшаяся от прерванной попытки, не блокирует подготовку
func TestProvision_LeftoverPermissionTable(t *testing.T) {
	b := newBrokerWithSchema(t, storagePostgres.BaselineSchema)
	unit := newUnitSession(service.ProbeTable)
	b.expectStorage("a@x.com", "a_login", "Abcdef1!", unit)

	result, err := b.provisioner.Provision(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, len(storagePostgres.BaselineSchema), result.TablesCreated)
	assert.False(t, unit.has(service.ProbeTable))
}
