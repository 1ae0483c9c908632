package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected server timeouts: %+v", cfg.Server)
	}
	if !cfg.IsLocal() {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Store.SessionTTL != 30*time.Minute || cfg.Store.DurableTTL != 720*time.Hour {
		t.Errorf("unexpected scope ttls: %s %s", cfg.Store.SessionTTL, cfg.Store.DurableTTL)
	}
	if cfg.Session.CookieName != "orderflow_session" {
		t.Errorf("unexpected cookie name %s", cfg.Session.CookieName)
	}
	if cfg.Session.Secure {
		t.Errorf("expected insecure cookie for local environment")
	}
	if cfg.Domains.SearchAvailability != 0.6 || cfg.Domains.QuickAvailability != 0.4 {
		t.Errorf("unexpected availability profile: %+v", cfg.Domains)
	}
	if cfg.Domains.SearchDelay != 1500*time.Millisecond {
		t.Errorf("unexpected search delay: %s", cfg.Domains.SearchDelay)
	}
	if !cfg.Wizard.TaxRate.Equal(decimal.RequireFromString("0.10")) {
		t.Errorf("unexpected tax rate: %s", cfg.Wizard.TaxRate)
	}
	if cfg.Wizard.PaymentDelay != 3*time.Second || cfg.Wizard.SubmitDelay != 2*time.Second {
		t.Errorf("unexpected wizard delays: %+v", cfg.Wizard)
	}
	if cfg.PSP.Provider != PSPProviderSimulated || cfg.PSP.SimulatedDeclineRate != 0 {
		t.Errorf("unexpected psp config: %+v", cfg.PSP)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("unexpected metrics config: %+v", cfg.Metrics)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"ORDER_ENVIRONMENT":                 "prod",
		"ORDER_SERVER_PORT":                 "9090",
		"ORDER_SERVER_READ_TIMEOUT":         "20s",
		"ORDER_STORE_BACKEND":               "Redis",
		"ORDER_REDIS_ADDR":                  "127.0.0.1:6379",
		"ORDER_REDIS_PASSWORD":              "sm://redis/password",
		"ORDER_REDIS_DB":                    "2",
		"ORDER_FIRESTORE_PROJECT_ID":        "orders-prod",
		"ORDER_SESSION_HASH_KEY":            "secret://session/hash",
		"ORDER_SESSION_BLOCK_KEY":           "0123456789abcdef0123456789abcdef",
		"ORDER_DOMAINS_SEARCH_AVAILABILITY": "0.5",
		"ORDER_WIZARD_TAX_RATE":             "0.075",
		"ORDER_WIZARD_CURRENCY":             "eur",
		"ORDER_PSP_PROVIDER":                "stripe",
		"ORDER_PSP_STRIPE_API_KEY":          "secret://stripe/api",
		"ORDER_EVENTS_TOPIC":                "order-events",
		"ORDER_METRICS_ENABLED":             "off",
	}
	secrets := map[string]string{
		"secret://redis/password": "redis-pass",
		"secret://session/hash":   "hash-key",
		"secret://stripe/api":     "sk_test_123",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := load(t, env, WithSecretResolver(resolver), WithRequiredSecrets("Session.HashKey", "PSP.StripeAPIKey"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Store.Backend != StoreBackendRedis || cfg.Store.Redis.DB != 2 {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Store.Redis.Password != "redis-pass" {
		t.Errorf("expected resolved redis password, got %q", cfg.Store.Redis.Password)
	}
	if cfg.Session.HashKey != "hash-key" {
		t.Errorf("expected resolved hash key, got %q", cfg.Session.HashKey)
	}
	if !cfg.Session.Secure {
		t.Errorf("expected secure cookie outside local")
	}
	if cfg.Domains.SearchAvailability != 0.5 {
		t.Errorf("unexpected availability %v", cfg.Domains.SearchAvailability)
	}
	if !cfg.Wizard.TaxRate.Equal(decimal.RequireFromString("0.075")) || cfg.Wizard.Currency != "EUR" {
		t.Errorf("unexpected wizard config: %+v", cfg.Wizard)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_123" {
		t.Errorf("expected resolved stripe key, got %q", cfg.PSP.StripeAPIKey)
	}
	if cfg.Events.ProjectID != "orders-prod" || cfg.Secrets.ProjectID != "orders-prod" {
		t.Errorf("expected projects to default to firestore project: %+v %+v", cfg.Events, cfg.Secrets)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("expected metrics disabled")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"ORDER_ENVIRONMENT":                 "prod",
		"ORDER_STORE_BACKEND":               "firestore",
		"ORDER_FIRESTORE_PROJECT_ID":        "",
		"ORDER_DOMAINS_SEARCH_AVAILABILITY": "1.5",
		"ORDER_DOMAINS_QUICK_DELAY_MIN":     "2s",
		"ORDER_DOMAINS_QUICK_DELAY_MAX":     "1s",
		"ORDER_PSP_PROVIDER":                "paypal",
	}
	_, err := load(t, env)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	want := map[string]bool{
		"Store.Firestore.ProjectID":  false,
		"Session.HashKey":            false,
		"Domains.SearchAvailability": false,
		"Domains.QuickDelayMax":      false,
		"PSP.Provider":               false,
	}
	for _, field := range vErr.Fields() {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", field, vErr.Fields())
		}
	}
}

func TestLoadUnresolvableSecret(t *testing.T) {
	env := map[string]string{"ORDER_SESSION_HASH_KEY": "sm://session/hash"}
	_, err := load(t, env)
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if sErr.Ref != "secret://session/hash" {
		t.Errorf("expected normalised ref, got %s", sErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver not configured, got %v", err)
	}
}

func TestLoadMissingRequiredSecret(t *testing.T) {
	_, err := load(t, map[string]string{}, WithRequiredSecrets("Session.HashKey", " ", "Session.HashKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Session.HashKey" {
		t.Errorf("unexpected names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Session.HashKey" {
		t.Errorf("expected redacted name, got %v", redacted)
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport ORDER_SERVER_PORT=7070\nORDER_WIZARD_CURRENCY=\"gbp\"\nORDER_REDIS_PREFIX='shop'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"ORDER_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("explicit env map must win over .env, got %s", cfg.Server.Port)
	}
	if cfg.Wizard.Currency != "GBP" || cfg.Store.Redis.Prefix != "shop" {
		t.Errorf("expected .env values, got %s %s", cfg.Wizard.Currency, cfg.Store.Redis.Prefix)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"EXTRA": "1"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["ORDER_SERVER_PORT"] != "7070" || values["EXTRA"] != "1" {
		t.Errorf("unexpected snapshot %v", values)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"ORDER_SERVER_READ_TIMEOUT": "soon",
		"ORDER_REDIS_DB":            "two",
		"ORDER_WIZARD_TAX_RATE":     "ten percent",
		"ORDER_METRICS_ENABLED":     "maybe",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout || cfg.Store.Redis.DB != 0 {
		t.Errorf("expected defaults for malformed values: %+v", cfg)
	}
	if !cfg.Wizard.TaxRate.Equal(decimal.RequireFromString(defaultTaxRate)) || !cfg.Metrics.Enabled {
		t.Errorf("expected defaults for malformed values: %+v %+v", cfg.Wizard, cfg.Metrics)
	}
}
