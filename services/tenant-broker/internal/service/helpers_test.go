package service_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ShopPlatform/pkg/logger"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/metrics"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
	"ShopPlatform/services/tenant-broker/internal/pkg/vault"
	"ShopPlatform/services/tenant-broker/internal/producer/rabbitmq"
	"ShopPlatform/services/tenant-broker/internal/repository"
	"ShopPlatform/services/tenant-broker/internal/repository/memory"
	"ShopPlatform/services/tenant-broker/internal/service"
)

var errDuplicateTable = errors.New("relation already exists")

var testSchema = []string{
	"CREATE TABLE IF NOT EXISTS customers (phone TEXT)",
	"CREATE TABLE IF NOT EXISTS employees (id TEXT)",
	"CREATE TABLE IF NOT EXISTS orders (id TEXT)",
}

// MockStorageDriver мок драйвера хранилища
type MockStorageDriver struct {
	mock.Mock
}

func (m *MockStorageDriver) CreateUnitIfAbsent(ctx context.Context, unit string) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockStorageDriver) CreatePrincipalIfAbsent(ctx context.Context, principal, secret string) error {
	args := m.Called(ctx, principal, secret)
	return args.Error(0)
}

func (m *MockStorageDriver) GrantOwnership(ctx context.Context, unit, principal string) error {
	args := m.Called(ctx, unit, principal)
	return args.Error(0)
}

func (m *MockStorageDriver) OpenAs(ctx context.Context, descriptor domain.ConnectionDescriptor) (repository.TenantSession, error) {
	args := m.Called(ctx, descriptor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repository.TenantSession), args.Error(1)
}

// MockPrincipalRepository мок поиска сотрудников
type MockPrincipalRepository struct {
	mock.Mock
}

func (m *MockPrincipalRepository) FindByPhone(ctx context.Context, descriptor domain.ConnectionDescriptor, phone string) (*domain.SecondaryPrincipal, error) {
	args := m.Called(ctx, descriptor, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SecondaryPrincipal), args.Error(1)
}

// MockRegistry мок реестра для сценариев с ошибками хранилища реестра
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) FindByEmail(ctx context.Context, email string) (*domain.TenantIdentity, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantIdentity), args.Error(1)
}

func (m *MockRegistry) FindByLoginName(ctx context.Context, loginName string) (*domain.TenantIdentity, error) {
	args := m.Called(ctx, loginName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantIdentity), args.Error(1)
}

func (m *MockRegistry) Exists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistry) Create(ctx context.Context, identity *domain.TenantIdentity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockRegistry) Remove(ctx context.Context, identity *domain.TenantIdentity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

// fakeSession сессия базы арендатора, падающая на командах с заданной подстрокой
type fakeSession struct {
	mu         sync.Mutex
	failOn     string
	statements []string
	closed     bool
}

func (s *fakeSession) Exec(_ context.Context, statement string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements = append(s.statements, statement)
	if s.failOn != "" && strings.Contains(statement, s.failOn) {
		return errDuplicateTable
	}
	return nil
}

func (s *fakeSession) Ping(context.Context) error { return nil }
func (s *fakeSession) Close()                     { s.closed = true }

var (
	createTablePattern = regexp.MustCompile(`(?i)^\s*CREATE TABLE (IF NOT EXISTS )?(\w+)`)
	dropTablePattern   = regexp.MustCompile(`(?i)^\s*DROP TABLE (IF EXISTS )?(\w+)`)

	errStatementTimeout = errors.New("canceling statement due to statement timeout")
	errUndefinedTable   = errors.New("table does not exist")
)

// unitSession база арендатора, которая помнит таблицы между попытками подготовки.
// CREATE TABLE без IF NOT EXISTS на существующей таблице падает, как в PostgreSQL.
type unitSession struct {
	mu       sync.Mutex
	tables   map[string]bool
	failNext map[string]bool
}

func newUnitSession(tables ...string) *unitSession {
	s := &unitSession{tables: map[string]bool{}, failNext: map[string]bool{}}
	for _, table := range tables {
		s.tables[table] = true
	}
	return s
}

// timeoutOn следующее создание таблицы падает по таймауту
func (s *unitSession) timeoutOn(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[table] = true
}

func (s *unitSession) has(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table]
}

func (s *unitSession) Exec(_ context.Context, statement string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := createTablePattern.FindStringSubmatch(statement); m != nil {
		name := strings.ToLower(m[2])
		if s.failNext[name] {
			delete(s.failNext, name)
			return errStatementTimeout
		}
		if s.tables[name] {
			if m[1] == "" {
				return errDuplicateTable
			}
			return nil
		}
		s.tables[name] = true
		return nil
	}

	if m := dropTablePattern.FindStringSubmatch(statement); m != nil {
		name := strings.ToLower(m[2])
		if !s.tables[name] && m[1] == "" {
			return errUndefinedTable
		}
		delete(s.tables, name)
	}
	return nil
}

func (s *unitSession) Ping(context.Context) error { return nil }
func (s *unitSession) Close()                     {}

// recordingEvents запоминает опубликованные события
type recordingEvents struct {
	mu     sync.Mutex
	events []rabbitmq.TenantEvent
}

func (r *recordingEvents) PublishTenantEvent(_ context.Context, event rabbitmq.TenantEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var testEndpoint = service.StorageEndpoint{Host: "tenants.local", Port: 5432, SSLMode: "disable", ConnectTimeout: 5 * time.Second}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(vault.Config{Key: "0123456789abcdef0123456789abcdef", IV: "abcdef9876543210"})
	require.NoError(t, err)
	return v
}

func newTestMetrics() *metrics.BrokerMetrics {
	return metrics.NewBrokerMetricsWithRegistry("tenant-broker-test", prometheus.NewRegistry())
}

func newTestTokens() *jwt.Manager {
	return jwt.NewManager("test-secret", "shop-platform", "shop-clients", time.Hour)
}

// broker собранный набор сервисов поверх реестра в памяти
type broker struct {
	registry    *memory.Registry
	driver      *MockStorageDriver
	principals  *MockPrincipalRepository
	events      *recordingEvents
	vault       *vault.Vault
	tokens      *jwt.Manager
	provisioner *service.Provisioner
	resolver    *service.Resolver
	auth        *service.AuthService
}

func newBroker(t *testing.T) *broker {
	t.Helper()
	return newBrokerWithSchema(t, testSchema)
}

func newBrokerWithSchema(t *testing.T, schema []string) *broker {
	t.Helper()

	b := &broker{
		registry:   memory.NewRegistry(),
		driver:     &MockStorageDriver{},
		principals: &MockPrincipalRepository{},
		events:     &recordingEvents{},
		vault:      newTestVault(t),
		tokens:     newTestTokens(),
	}
	m := newTestMetrics()
	log := logger.NewNop()

	b.provisioner = service.NewProvisioner(service.ProvisionerDeps{
		Registry: b.registry,
		Driver:   b.driver,
		Vault:    b.vault,
		Events:   b.events,
		Metrics:  m,
		Logger:   log,
		Endpoint: testEndpoint,
		Schema:   schema,
	})
	b.resolver = service.NewResolver(b.registry, b.vault, testEndpoint, m, log)
	b.auth = service.NewAuthService(service.AuthDeps{
		Registry:    b.registry,
		Provisioner: b.provisioner,
		Resolver:    b.resolver,
		Principals:  b.principals,
		Vault:       b.vault,
		Tokens:      b.tokens,
		Metrics:     m,
		Logger:      log,
	})
	return b
}

// expectStorage настраивает успешные шаги 2-4 и возвращает сессию для шага 5
func (b *broker) expectStorage(unit, principal, secret string, session repository.TenantSession) {
	b.driver.On("CreateUnitIfAbsent", mock.Anything, unit).Return(nil)
	b.driver.On("CreatePrincipalIfAbsent", mock.Anything, principal, secret).Return(nil)
	b.driver.On("GrantOwnership", mock.Anything, unit, principal).Return(nil)
	b.driver.On("OpenAs", mock.Anything, mock.MatchedBy(func(d domain.ConnectionDescriptor) bool {
		return d.Database == unit && d.User == principal && d.Password == secret && d.Host == testEndpoint.Host
	})).Return(session, nil)
}
