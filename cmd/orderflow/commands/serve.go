package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/rekakarya/orderflow/internal/bridge"
	"github.com/rekakarya/orderflow/internal/domain"
	"github.com/rekakarya/orderflow/internal/events"
	"github.com/rekakarya/orderflow/internal/handlers"
	"github.com/rekakarya/orderflow/internal/payments"
	"github.com/rekakarya/orderflow/internal/platform/config"
	pfirestore "github.com/rekakarya/orderflow/internal/platform/firestore"
	"github.com/rekakarya/orderflow/internal/platform/idempotency"
	"github.com/rekakarya/orderflow/internal/platform/metrics"
	"github.com/rekakarya/orderflow/internal/platform/observability"
	"github.com/rekakarya/orderflow/internal/platform/secrets"
	"github.com/rekakarya/orderflow/internal/session"
	"github.com/rekakarya/orderflow/internal/wizard"
)

const memoryCleanupInterval = time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the order wizard HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

// background owns the periodic jobs started by serve.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBackground() *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel}
}

func (b *background) every(interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(b.ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-b.ctx.Done():
				return
			}
		}
	}()
}

func (b *background) stop() {
	b.cancel()
	b.wg.Wait()
}

func serve(ctx context.Context) error {
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues(config.WithEnvFile(envFile))
	if err != nil {
		return fmt.Errorf("read environment values: %w", err)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("orderflow")

	gcpOpts := gcpClientOptions(envValues)
	fetcher, err := newSecretFetcher(ctx, logger, envValues, gcpOpts...)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := loadConfig(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	jobs := newBackground()
	defer jobs.stop()

	store, closeStore, err := newStateStore(ctx, cfg, logger, jobs, gcpOpts...)
	if err != nil {
		return err
	}
	defer closeStore()

	stateBridge, err := bridge.New(store,
		bridge.WithSessionTTL(cfg.Store.SessionTTL),
		bridge.WithDurableTTL(cfg.Store.DurableTTL),
	)
	if err != nil {
		return fmt.Errorf("initialise state bridge: %w", err)
	}
	states, err := bridge.NewOrderStates(stateBridge)
	if err != nil {
		return fmt.Errorf("initialise order states: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	searcher, err := newSearcher(cfg, cat)
	if err != nil {
		return fmt.Errorf("initialise domain searcher: %w", err)
	}

	paymentManager, err := newPaymentManager(cfg, logger)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.Topic != "" {
		pubsubPublisher, closeEvents, err := events.Connect(ctx, cfg.Events.ProjectID, cfg.Events.Topic, gcpOpts...)
		if err != nil {
			return fmt.Errorf("initialise order events: %w", err)
		}
		defer func() {
			if err := closeEvents(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher = pubsubPublisher
	}

	registry := metrics.New()

	controller, err := wizard.New(wizard.Deps{
		States:        states,
		Searcher:      searcher,
		Catalog:       cat,
		Payments:      paymentManager,
		Events:        publisher,
		Metrics:       registry,
		Clock:         time.Now,
		Logger:        observability.EventLogger(logger.Named("wizard")),
		TaxRate:       cfg.Wizard.TaxRate,
		Currency:      cfg.Wizard.Currency,
		SubmitDelay:   cfg.Wizard.SubmitDelay,
		PaymentDelay:  cfg.Wizard.PaymentDelay,
		RedirectDelay: cfg.Wizard.RedirectDelay,
	})
	if err != nil {
		return fmt.Errorf("initialise wizard: %w", err)
	}

	sessions, err := newSessionManager(cfg, logger)
	if err != nil {
		return err
	}

	idempotencyStore := newIdempotencyStore(store, cfg)
	if cleaner, ok := idempotencyStore.(*idempotency.MemoryStore); ok {
		idemLogger := logger.Named("idempotency")
		jobs.every(cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
			removed, err := cleaner.CleanupExpired(ctx, time.Now().UTC(), 0)
			if err != nil {
				idemLogger.Error("idempotency cleanup error", zap.Error(err))
				return
			}
			if removed > 0 {
				idemLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
	}
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMaxBodyBytes(handlers.MaxRequestBody),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessCheck("state_store", controller.Ready),
	)

	httpLogger := logger.Named("http")
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.RecoveryMiddleware(httpLogger),
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(cfg.Store.Firestore.ProjectID),
			session.Middleware(sessions),
			observability.RequestLoggerMiddleware(),
			registry.Middleware,
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(cat).Routes),
		handlers.WithDomainRoutes(handlers.NewDomainHandlers(controller).Routes),
		handlers.WithOrderMiddlewares(middleware.NoCache),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(controller,
			handlers.WithPaymentMiddlewares(idempotencyMiddleware),
			handlers.WithIdempotencyHeader(cfg.Idempotency.Header),
		).Routes),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, handlers.WithMetricsHandler(cfg.Metrics.Path, registry.Handler()))
	}

	return runServer(ctx, cfg.Server, handlers.NewRouter(opts...), logger)
}

func runServer(ctx context.Context, cfg config.ServerConfig, router chi.Router, logger *zap.Logger) error {
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	serveErr := make(chan error, 1)
	go func() {
		serverLogger.Info("orderflow api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func newStateStore(ctx context.Context, cfg config.Config, logger *zap.Logger, jobs *background, gcpOpts ...option.ClientOption) (bridge.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Store.Redis.Addr, err)
		}
		return bridge.NewRedisStore(client, cfg.Store.Redis.Prefix), func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}, nil

	case config.StoreBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Store.Firestore, pfirestore.WithClientOptions(gcpOpts...))
		if _, err := provider.Client(ctx); err != nil {
			return nil, nil, fmt.Errorf("initialise firestore client: %w", err)
		}
		return bridge.NewFirestoreStore(provider, cfg.Store.Firestore.Collection, time.Now), func() {
			if err := provider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}, nil

	default:
		store := bridge.NewMemoryStore(time.Now)
		storeLogger := logger.Named("state")
		jobs.every(memoryCleanupInterval, func(context.Context) {
			if removed := store.CleanupExpired(time.Now()); removed > 0 {
				storeLogger.Debug("expired order state removed", zap.Int("count", removed), zap.Int("remaining", store.Len()))
			}
		})
		return store, func() {}, nil
	}
}

// newIdempotencyStore shares the Redis connection when the state lives there, so replays work
// across instances. Other backends keep reservations in process.
func newIdempotencyStore(store bridge.Store, cfg config.Config) idempotency.Store {
	if rs, ok := store.(*bridge.RedisStore); ok {
		return idempotency.NewRedisStore(rs.Client(), cfg.Store.Redis.Prefix+":idem")
	}
	return idempotency.NewMemoryStore()
}

func newPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	simulated := payments.NewSimulatedProvider(cfg.PSP.SimulatedDeclineRate)
	if cfg.PSP.Provider != config.PSPProviderStripe {
		manager, err := payments.NewManager(map[string]payments.Provider{
			config.PSPProviderSimulated: simulated,
		}, payments.WithDefaultProvider(config.PSPProviderSimulated))
		if err != nil {
			return nil, fmt.Errorf("initialise payment manager: %w", err)
		}
		return manager, nil
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: observability.EventLogger(logger.Named("payments")),
	})
	if err != nil {
		return nil, fmt.Errorf("initialise stripe payment provider: %w", err)
	}
	// Stripe only takes cards here; wallet and bank orders stay simulated.
	manager, err := payments.NewManager(map[string]payments.Provider{
		config.PSPProviderStripe:    stripeProvider,
		config.PSPProviderSimulated: simulated,
	},
		payments.WithDefaultProvider(config.PSPProviderStripe),
		payments.WithMethodRoutes(map[domain.PaymentMethod]string{
			domain.PaymentMethodPayPal: config.PSPProviderSimulated,
			domain.PaymentMethodBank:   config.PSPProviderSimulated,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise payment manager: %w", err)
	}
	return manager, nil
}

func newSessionManager(cfg config.Config, logger *zap.Logger) (*session.Manager, error) {
	hashKey := []byte(cfg.Session.HashKey)
	blockKey := []byte(cfg.Session.BlockKey)
	if len(hashKey) == 0 && cfg.IsLocal() {
		logger.Warn("session keys not configured; using ephemeral keys")
		hashKey, blockKey = session.EphemeralKeys()
	}
	manager, err := session.NewManager(session.Config{
		CookieName:  cfg.Session.CookieName,
		HashKey:     hashKey,
		BlockKey:    blockKey,
		Secure:      cfg.Session.Secure,
		IdleTimeout: cfg.Session.IdleTimeout,
		Lifetime:    cfg.Session.Lifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise session manager: %w", err)
	}
	return manager, nil
}

// gcpClientOptions points the Google clients at an explicit service account key instead of the
// ambient credentials.
func gcpClientOptions(env map[string]string) []option.ClientOption {
	path := strings.TrimSpace(env["ORDER_GCP_CREDENTIALS_FILE"])
	if path == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(path)}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string, clientOpts ...option.ClientOption) (*secrets.Fetcher, error) {
	lookup := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(env[key]); value != "" {
				return value
			}
		}
		return ""
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(lookup("ORDER_SECRETS_PROJECT_ID", "ORDER_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")),
	}
	fallback := lookup("ORDER_SECRETS_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}
	opts = append(opts, secrets.WithFallbackFile(fallback))
	if len(clientOpts) > 0 {
		opts = append(opts, secrets.WithClientOptions(clientOpts...))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	var required []string
	if label := strings.ToLower(strings.TrimSpace(env["ORDER_ENVIRONMENT"])); label != "" && label != "local" {
		required = append(required, "Session.HashKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["ORDER_PSP_PROVIDER"]), config.PSPProviderStripe) {
		required = append(required, "PSP.StripeAPIKey")
	}
	return required
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["ORDER_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   strings.TrimSpace(env["ORDER_BUILD_COMMIT"]),
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}
