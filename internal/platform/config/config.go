package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultEnvironment         = "local"
	defaultStoreBackend        = StoreBackendMemory
	defaultSessionScopeTTL     = 30 * time.Minute
	defaultDurableScopeTTL     = 720 * time.Hour
	defaultRedisPrefix         = "orderflow"
	defaultFirestoreCollection = "orderState"
	defaultCookieName          = "orderflow_session"
	defaultSessionIdle         = 30 * time.Minute
	defaultSessionLifetime     = 24 * time.Hour
	defaultSearchAvailability  = 0.6
	defaultDiscountProbability = 0.3
	defaultDiscountRate        = 0.2
	defaultSearchDelay         = 1500 * time.Millisecond
	defaultQuickAvailability   = 0.4
	defaultQuickDelayMin       = 500 * time.Millisecond
	defaultQuickDelayMax       = 1500 * time.Millisecond
	defaultTaxRate             = "0.10"
	defaultCurrency            = "USD"
	defaultSubmitDelay         = 2 * time.Second
	defaultPaymentDelay        = 3 * time.Second
	defaultRedirectDelay       = 3 * time.Second
	defaultPSPProvider         = PSPProviderSimulated
	defaultSecretsFallbackFile = ".secrets.local"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultMetricsPath         = "/metrics"
	envGoogleProjectID         = "GOOGLE_CLOUD_PROJECT"
)

// Store backends.
const (
	StoreBackendMemory    = "memory"
	StoreBackendRedis     = "redis"
	StoreBackendFirestore = "firestore"
)

// Payment providers.
const (
	PSPProviderSimulated = "simulated"
	PSPProviderStripe    = "stripe"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Session     SessionConfig
	Domains     DomainsConfig
	Wizard      WizardConfig
	PSP         PSPConfig
	Events      EventsConfig
	Secrets     SecretsConfig
	Idempotency IdempotencyConfig
	Metrics     MetricsConfig
}

// IsLocal reports whether the service runs on a developer machine.
func (c Config) IsLocal() bool {
	return c.Environment == defaultEnvironment
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the order state backend and scope lifetimes.
type StoreConfig struct {
	Backend    string
	SessionTTL time.Duration
	DurableTTL time.Duration
	Redis      RedisConfig
	Firestore  FirestoreConfig
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// SessionConfig configures the visitor cookie.
type SessionConfig struct {
	CookieName  string
	HashKey     string
	BlockKey    string
	Secure      bool
	IdleTimeout time.Duration
	Lifetime    time.Duration
}

// DomainsConfig tunes the simulated registry.
type DomainsConfig struct {
	SearchAvailability  float64
	DiscountProbability float64
	DiscountRate        float64
	SearchDelay         time.Duration
	QuickAvailability   float64
	QuickDelayMin       time.Duration
	QuickDelayMax       time.Duration
}

// WizardConfig holds pricing and pacing of the order flow.
type WizardConfig struct {
	TaxRate       decimal.Decimal
	Currency      string
	SubmitDelay   time.Duration
	PaymentDelay  time.Duration
	RedirectDelay time.Duration
	CatalogPath   string
}

// PSPConfig contains payment provider credentials.
type PSPConfig struct {
	Provider             string
	StripeAPIKey         string
	SimulatedDeclineRate float64
}

// EventsConfig configures order event publishing. An empty topic disables it.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// IdempotencyConfig configures the payment replay guard.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers that are safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func defaultOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Session.HashKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the effective environment after applying the Load precedence rules
// (.env < process env < explicit map). Callers use it to build dependencies, such as the secret
// resolver, before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := newLookup(options)
	if err != nil {
		return nil, err
	}
	return lookup.snapshot(), nil
}

// Load assembles the configuration from defaults, .env overrides, environment variables and
// secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	env, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}
	lookup := env.get

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "ORDER_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "ORDER_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "ORDER_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "ORDER_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "ORDER_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "ORDER_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(stringWithDefault(lookup, "ORDER_STORE_BACKEND", defaultStoreBackend)),
			SessionTTL: durationWithDefault(lookup, "ORDER_STORE_SESSION_TTL", defaultSessionScopeTTL),
			DurableTTL: durationWithDefault(lookup, "ORDER_STORE_DURABLE_TTL", defaultDurableScopeTTL),
			Redis: RedisConfig{
				Addr:     stringWithDefault(lookup, "ORDER_REDIS_ADDR", ""),
				Password: stringWithDefault(lookup, "ORDER_REDIS_PASSWORD", ""),
				DB:       intWithDefault(lookup, "ORDER_REDIS_DB", 0),
				Prefix:   stringWithDefault(lookup, "ORDER_REDIS_PREFIX", defaultRedisPrefix),
			},
			Firestore: FirestoreConfig{
				ProjectID:    stringWithDefault(lookup, "ORDER_FIRESTORE_PROJECT_ID", stringWithDefault(lookup, envGoogleProjectID, "")),
				EmulatorHost: stringWithDefault(lookup, "ORDER_FIRESTORE_EMULATOR_HOST", ""),
				Collection:   stringWithDefault(lookup, "ORDER_FIRESTORE_COLLECTION", defaultFirestoreCollection),
			},
		},
		Session: SessionConfig{
			CookieName:  stringWithDefault(lookup, "ORDER_SESSION_COOKIE", defaultCookieName),
			HashKey:     stringWithDefault(lookup, "ORDER_SESSION_HASH_KEY", ""),
			BlockKey:    stringWithDefault(lookup, "ORDER_SESSION_BLOCK_KEY", ""),
			IdleTimeout: durationWithDefault(lookup, "ORDER_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:    durationWithDefault(lookup, "ORDER_SESSION_LIFETIME", defaultSessionLifetime),
		},
		Domains: DomainsConfig{
			SearchAvailability:  floatWithDefault(lookup, "ORDER_DOMAINS_SEARCH_AVAILABILITY", defaultSearchAvailability),
			DiscountProbability: floatWithDefault(lookup, "ORDER_DOMAINS_DISCOUNT_PROBABILITY", defaultDiscountProbability),
			DiscountRate:        floatWithDefault(lookup, "ORDER_DOMAINS_DISCOUNT_RATE", defaultDiscountRate),
			SearchDelay:         durationWithDefault(lookup, "ORDER_DOMAINS_SEARCH_DELAY", defaultSearchDelay),
			QuickAvailability:   floatWithDefault(lookup, "ORDER_DOMAINS_QUICK_AVAILABILITY", defaultQuickAvailability),
			QuickDelayMin:       durationWithDefault(lookup, "ORDER_DOMAINS_QUICK_DELAY_MIN", defaultQuickDelayMin),
			QuickDelayMax:       durationWithDefault(lookup, "ORDER_DOMAINS_QUICK_DELAY_MAX", defaultQuickDelayMax),
		},
		Wizard: WizardConfig{
			TaxRate:       decimalWithDefault(lookup, "ORDER_WIZARD_TAX_RATE", defaultTaxRate),
			Currency:      strings.ToUpper(stringWithDefault(lookup, "ORDER_WIZARD_CURRENCY", defaultCurrency)),
			SubmitDelay:   durationWithDefault(lookup, "ORDER_WIZARD_SUBMIT_DELAY", defaultSubmitDelay),
			PaymentDelay:  durationWithDefault(lookup, "ORDER_WIZARD_PAYMENT_DELAY", defaultPaymentDelay),
			RedirectDelay: durationWithDefault(lookup, "ORDER_WIZARD_REDIRECT_DELAY", defaultRedirectDelay),
			CatalogPath:   stringWithDefault(lookup, "ORDER_CATALOG_PATH", ""),
		},
		PSP: PSPConfig{
			Provider:             strings.ToLower(stringWithDefault(lookup, "ORDER_PSP_PROVIDER", defaultPSPProvider)),
			StripeAPIKey:         stringWithDefault(lookup, "ORDER_PSP_STRIPE_API_KEY", ""),
			SimulatedDeclineRate: floatWithDefault(lookup, "ORDER_PSP_SIMULATED_DECLINE_RATE", 0),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "ORDER_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "ORDER_EVENTS_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "ORDER_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "ORDER_SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "ORDER_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             durationWithDefault(lookup, "ORDER_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "ORDER_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
		},
		Metrics: MetricsConfig{
			Enabled: boolWithDefault(lookup, "ORDER_METRICS_ENABLED", true),
			Path:    stringWithDefault(lookup, "ORDER_METRICS_PATH", defaultMetricsPath),
		},
	}
	cfg.Session.Secure = boolWithDefault(lookup, "ORDER_SESSION_SECURE", !cfg.IsLocal())

	// Events and secrets share the Firestore project unless told otherwise.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Store.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Store.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Store.Redis.Password", &cfg.Store.Redis.Password},
		{"Session.HashKey", &cfg.Session.HashKey},
		{"Session.BlockKey", &cfg.Session.BlockKey},
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}
	probability := func(v float64) bool { return v >= 0 && v <= 1 }

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Server.ShutdownTimeout > 0, "Server.ShutdownTimeout")

	switch cfg.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		check(strings.TrimSpace(cfg.Store.Redis.Addr) != "", "Store.Redis.Addr")
	case StoreBackendFirestore:
		check(strings.TrimSpace(cfg.Store.Firestore.ProjectID) != "", "Store.Firestore.ProjectID")
		check(strings.TrimSpace(cfg.Store.Firestore.Collection) != "", "Store.Firestore.Collection")
	default:
		invalid = append(invalid, "Store.Backend")
	}
	check(cfg.Store.SessionTTL > 0, "Store.SessionTTL")
	check(cfg.Store.DurableTTL >= 0, "Store.DurableTTL")

	check(strings.TrimSpace(cfg.Session.CookieName) != "", "Session.CookieName")
	check(cfg.IsLocal() || strings.TrimSpace(cfg.Session.HashKey) != "", "Session.HashKey")
	check(cfg.Session.Lifetime > 0, "Session.Lifetime")

	check(probability(cfg.Domains.SearchAvailability), "Domains.SearchAvailability")
	check(probability(cfg.Domains.DiscountProbability), "Domains.DiscountProbability")
	check(probability(cfg.Domains.DiscountRate), "Domains.DiscountRate")
	check(probability(cfg.Domains.QuickAvailability), "Domains.QuickAvailability")
	check(cfg.Domains.SearchDelay >= 0, "Domains.SearchDelay")
	check(cfg.Domains.QuickDelayMin >= 0 && cfg.Domains.QuickDelayMax >= cfg.Domains.QuickDelayMin, "Domains.QuickDelayMax")

	check(!cfg.Wizard.TaxRate.IsNegative(), "Wizard.TaxRate")
	check(len(cfg.Wizard.Currency) == 3, "Wizard.Currency")
	check(cfg.Wizard.SubmitDelay >= 0, "Wizard.SubmitDelay")
	check(cfg.Wizard.PaymentDelay >= 0, "Wizard.PaymentDelay")

	switch cfg.PSP.Provider {
	case PSPProviderSimulated:
		check(probability(cfg.PSP.SimulatedDeclineRate), "PSP.SimulatedDeclineRate")
	case PSPProviderStripe:
		check(strings.TrimSpace(cfg.PSP.StripeAPIKey) != "", "PSP.StripeAPIKey")
	default:
		invalid = append(invalid, "PSP.Provider")
	}

	check(cfg.Events.Topic == "" || cfg.Events.ProjectID != "", "Events.ProjectID")

	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")

	check(!cfg.Metrics.Enabled || strings.HasPrefix(cfg.Metrics.Path, "/"), "Metrics.Path")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

// lookupEnv resolves keys with the precedence explicit map > process env > .env file.
type lookupEnv struct {
	envMap       map[string]string
	useSystemEnv bool
	dotEnv       map[string]string
}

func newLookup(options loaderOptions) (lookupEnv, error) {
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return lookupEnv{}, err
	}
	return lookupEnv{envMap: options.envMap, useSystemEnv: options.useSystemEnv, dotEnv: dotEnv}, nil
}

func (l lookupEnv) get(key string) (string, bool) {
	if value, ok := l.envMap[key]; ok {
		return value, true
	}
	if l.useSystemEnv {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := l.dotEnv[key]
	return value, ok
}

func (l lookupEnv) snapshot() map[string]string {
	values := make(map[string]string)
	for key, value := range l.dotEnv {
		values[key] = value
	}
	if l.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range l.envMap {
		values[key] = value
	}
	return values
}
