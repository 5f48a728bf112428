package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ShopPlatform/pkg/config"
	"ShopPlatform/pkg/connection"
	"ShopPlatform/pkg/database"
	"ShopPlatform/pkg/health"
	"ShopPlatform/pkg/logger"
	pkg_metrics "ShopPlatform/pkg/metrics"
	pkg_rabbitmq "ShopPlatform/pkg/rabbitmq"
	"ShopPlatform/pkg/ratelimit"
	pkg_redis "ShopPlatform/pkg/redis"
	"ShopPlatform/services/tenant-broker/internal/handler"
	"ShopPlatform/services/tenant-broker/internal/metrics"
	"ShopPlatform/services/tenant-broker/internal/middleware"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
	"ShopPlatform/services/tenant-broker/internal/pkg/vault"
	producerRabbitMQ "ShopPlatform/services/tenant-broker/internal/producer/rabbitmq"
	registryPostgres "ShopPlatform/services/tenant-broker/internal/repository/postgres"
	"ShopPlatform/services/tenant-broker/internal/service"
	storagePostgres "ShopPlatform/services/tenant-broker/internal/storage/postgres"
)

const (
	serviceName    = "tenant-broker"
	serviceVersion = "v1.0.0"
)

func main() {
	cfg, err := config.LoadConfig(findConfig())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	appLogger.Info("Starting tenant broker",
		logger.String("version", serviceVersion),
		logger.String("environment", cfg.Environment))

	ctx := context.Background()

	shutdownTracing, err := pkg_metrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	if err != nil {
		appLogger.Error("Failed to initialize tracing", logger.Error(err))
		os.Exit(1)
	}

	httpMetrics := pkg_metrics.NewMetrics(serviceName)
	brokerMetrics := metrics.NewBrokerMetrics(serviceName)

	// Реестр арендаторов
	registryConfig := database.NewConfig()
	registryConfig.Host = cfg.Database.Host
	registryConfig.Port = cfg.Database.Port
	registryConfig.User = cfg.Database.User
	registryConfig.Password = cfg.Database.Password
	registryConfig.Database = cfg.Database.Name
	registryConfig.SSLMode = cfg.Database.SSLMode
	if cfg.Database.MaxConns > 0 {
		registryConfig.MaxConns = cfg.Database.MaxConns
	}

	registryDB, err := database.Connect(ctx, registryConfig)
	if err != nil {
		appLogger.Error("Failed to connect to registry database",
			logger.String("database", registryConfig.String()),
			logger.Error(err))
		os.Exit(1)
	}
	defer registryDB.Close()

	registry := registryPostgres.NewRegistryRepository(registryDB.Pool)
	if err := registry.EnsureSchema(ctx); err != nil {
		appLogger.Error("Failed to prepare registry schema", logger.Error(err))
		os.Exit(1)
	}

	// Административное подключение к кластеру баз арендаторов
	connectTimeout := config.Duration(cfg.Storage.ConnectTimeout, 10*time.Second)

	adminConfig := database.NewConfig()
	adminConfig.Host = cfg.Storage.AdminHost
	adminConfig.Port = cfg.Storage.AdminPort
	adminConfig.User = cfg.Storage.AdminUser
	adminConfig.Password = cfg.Storage.AdminPassword
	adminConfig.Database = cfg.Storage.AdminDatabase
	adminConfig.SSLMode = cfg.Storage.SSLMode
	adminConfig.ConnectTimeout = connectTimeout

	adminDB, err := database.Connect(ctx, adminConfig)
	if err != nil {
		appLogger.Error("Failed to connect to storage cluster",
			logger.String("database", adminConfig.String()),
			logger.Error(err))
		os.Exit(1)
	}
	defer adminDB.Close()

	// Нулевая конфигурация повторов означает значения драйвера по умолчанию
	var retry connection.RetryConfig
	if cfg.Storage.MaxRetries > 0 {
		retry = connection.RetryConfig{
			MaxAttempts:  cfg.Storage.MaxRetries + 1,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		}
	}
	driver := storagePostgres.NewDriver(adminDB.Pool, storagePostgres.DriverConfig{
		Admin:          adminConfig,
		ConnectTimeout: connectTimeout,
		Retry:          retry,
	})

	secretVault, err := vault.New(vault.Config{Key: cfg.Vault.Key, IV: cfg.Vault.IV})
	if err != nil {
		appLogger.Error("Failed to initialize secret vault", logger.Error(err))
		os.Exit(1)
	}

	tokenManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience,
		config.Duration(cfg.JWT.TokenDuration, jwt.DefaultTokenTTL))

	healthChecker := health.NewCompositeChecker(serviceVersion, 5*time.Second)
	healthChecker.Register("registry", registryDB.HealthCheck)
	healthChecker.Register("storage_cluster", adminDB.HealthCheck)

	// События жизненного цикла арендаторов
	var events producerRabbitMQ.EventPublisher = producerRabbitMQ.NoopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rabbitConfig := pkg_rabbitmq.NewConfig()
		rabbitConfig.URL = cfg.RabbitMQ.URL
		rabbitConfig.Exchange = cfg.RabbitMQ.Exchange

		rabbitConn, err := pkg_rabbitmq.Connect(ctx, rabbitConfig)
		if err != nil {
			appLogger.Error("Failed to connect to RabbitMQ", logger.Error(err))
			os.Exit(1)
		}
		defer rabbitConn.Close()

		healthChecker.Register("rabbitmq", rabbitConn.HealthCheck)
		events = producerRabbitMQ.NewTenantEventProducer(pkg_rabbitmq.NewProducer(rabbitConn, rabbitConfig), appLogger)
	}

	endpoint := service.StorageEndpoint{
		Host:           cfg.Storage.TenantHost,
		Port:           cfg.Storage.TenantPort,
		SSLMode:        cfg.Storage.SSLMode,
		ConnectTimeout: connectTimeout,
	}

	provisioner := service.NewProvisioner(service.ProvisionerDeps{
		Registry: registry,
		Driver:   driver,
		Vault:    secretVault,
		Events:   events,
		Metrics:  brokerMetrics,
		Logger:   appLogger,
		Endpoint: endpoint,
		Schema:   storagePostgres.BaselineSchema,
	})
	resolver := service.NewResolver(registry, secretVault, endpoint, brokerMetrics, appLogger)
	authService := service.NewAuthService(service.AuthDeps{
		Registry:    registry,
		Provisioner: provisioner,
		Resolver:    resolver,
		Principals:  storagePostgres.NewPrincipalRepository(storagePostgres.Open),
		Vault:       secretVault,
		Tokens:      tokenManager,
		Metrics:     brokerMetrics,
		Logger:      appLogger,
	})

	var handlerOpts []handler.Option
	if cfg.RateLimiting.Enabled {
		redisConfig := pkg_redis.NewConfig()
		redisConfig.Addr = cfg.Redis.Addr
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB
		redisConfig.PoolSize = cfg.Redis.PoolSize
		redisConfig.MinIdleConn = cfg.Redis.MinIdleConn
		redisConfig.MaxRetries = cfg.Redis.MaxRetries
		redisConfig.RetryInterval = config.Duration(cfg.Redis.RetryInterval, time.Second)

		redisClient, err := pkg_redis.Connect(ctx, redisConfig)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", logger.Error(err))
			os.Exit(1)
		}
		defer redisClient.Close()

		healthChecker.Register("redis", redisClient.HealthCheck)
		rateLimiter := ratelimit.NewRedisRateLimiter(redisClient.Client)
		handlerOpts = append(handlerOpts, handler.WithLoginRateLimit(middleware.RateLimitMiddleware(
			rateLimiter,
			cfg.RateLimiting.RequestsPerMinute,
			config.Duration(cfg.RateLimiting.Window, time.Minute),
			cfg.RateLimiting.TrustForwardedFor,
			appLogger)))
	}

	mux := http.NewServeMux()
	handler.NewHTTPHandler(authService, resolver, driver, appLogger, handlerOpts...).RegisterRoutes(mux)
	mux.HandleFunc("GET /health", health.Handler(healthChecker))
	mux.HandleFunc("GET /ready", health.ReadyHandler(healthChecker))
	mux.HandleFunc("GET /live", health.LiveHandler())
	mux.Handle("GET /metrics", httpMetrics.GetHandler())

	server := &http.Server{
		Addr: cfg.Server.Address(),
		Handler: middleware.Chain(mux,
			middleware.RecoveryMiddleware(appLogger),
			middleware.LoggingMiddleware(appLogger),
			httpMetrics.Middleware),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	go func() {
		appLogger.Info("HTTP server listening", logger.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down tenant broker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Warn("Failed to stop tracer provider", logger.Error(err))
	}

	appLogger.Info("Tenant broker stopped")
}

// findConfig ищет config.yaml рядом с сервисом. Пустой путь означает
// конфигурацию только из значений по умолчанию и переменных окружения.
func findConfig() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	candidates := []string{
		filepath.Join(wd, "services", "tenant-broker", "config", "config.yaml"),
		filepath.Join(wd, "config", "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
