// Package config carrega a configuração da API a partir do ambiente (e de um .env opcional).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

// ErrConfiguracao indica configuração ausente ou inválida. A API não deve subir com ela.
var ErrConfiguracao = errors.New("configuração inválida")

type Config struct {
	HTTPAddr     string
	DatabasePath string
	LogLevel     slog.Level

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	// Preço do Stripe por plano pago.
	StripePrices    map[domain.SubscriptionTier]string
	TrialPeriodDays int64
	SiteURL         string

	SessionSecret string
	SessionName   string

	RedisURL         string
	WebhookDedupTTL  time.Duration
	WebhookDedupSize int

	Tracing TracingConfig
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRate  float64
	ServiceName string
	Environment string
	Version     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_PATH", "./sqlite-database.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STRIPE_WEBHOOK_TOLERANCE", "5m")
	v.SetDefault("TRIAL_PERIOD_DAYS", 3)
	v.SetDefault("SESSION_NAME", "chat-session")
	v.SetDefault("WEBHOOK_DEDUP_TTL", "72h")
	v.SetDefault("WEBHOOK_DEDUP_SIZE", 10000)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLE_RATE", 1.0)
	v.SetDefault("OTEL_SERVICE_NAME", "chat-billing")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_VERSION", "dev")
}

// Load lê o .env (se existir) e as variáveis de ambiente. Não valida: chame Validate antes de servir.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("falha ao ler .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// FromViper monta a Config a partir de uma instância já populada.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:     v.GetString("HTTP_ADDR"),
		DatabasePath: v.GetString("DATABASE_PATH"),

		StripeSecretKey:        v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:    v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripeWebhookTolerance: v.GetDuration("STRIPE_WEBHOOK_TOLERANCE"),
		StripePrices: map[domain.SubscriptionTier]string{
			domain.TierWeekly:  v.GetString("STRIPE_PRICE_WEEKLY"),
			domain.TierMonthly: v.GetString("STRIPE_PRICE_MONTHLY"),
			domain.TierYearly:  v.GetString("STRIPE_PRICE_YEARLY"),
		},
		TrialPeriodDays: v.GetInt64("TRIAL_PERIOD_DAYS"),
		SiteURL:         siteURL(v),

		SessionSecret: v.GetString("SESSION_SECRET"),
		SessionName:   v.GetString("SESSION_NAME"),

		RedisURL:         v.GetString("REDIS_URL"),
		WebhookDedupTTL:  v.GetDuration("WEBHOOK_DEDUP_TTL"),
		WebhookDedupSize: v.GetInt("WEBHOOK_DEDUP_SIZE"),

		Tracing: TracingConfig{
			Enabled:     v.GetBool("TRACING_ENABLED"),
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRate:  v.GetFloat64("TRACING_SAMPLE_RATE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			Environment: v.GetString("APP_ENV"),
			Version:     v.GetString("APP_VERSION"),
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", ErrConfiguracao, err)
	}
	return cfg, nil
}

// siteURL segue a ordem: SITE_URL, domínio da Vercel, localhost.
func siteURL(v *viper.Viper) string {
	if u := v.GetString("SITE_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	if host := v.GetString("VERCEL_URL"); host != "" {
		return "https://" + strings.TrimRight(host, "/")
	}
	return "http://localhost:3000"
}

// Validate reúne todos os problemas de uma vez para o operador corrigir em uma só tentativa.
func (c *Config) Validate() error {
	var problems []string
	if c.StripeSecretKey == "" {
		problems = append(problems, "STRIPE_SECRET_KEY ausente")
	}
	if c.StripeWebhookSecret == "" {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET ausente")
	}
	if c.SessionSecret == "" {
		problems = append(problems, "SESSION_SECRET ausente")
	}
	for _, tier := range domain.PaidTiers {
		if c.StripePrices[tier] == "" {
			problems = append(problems, fmt.Sprintf("STRIPE_PRICE_%s ausente", strings.ToUpper(string(tier))))
		}
	}
	if c.StripeWebhookTolerance <= 0 {
		problems = append(problems, "STRIPE_WEBHOOK_TOLERANCE deve ser positivo")
	}
	if c.WebhookDedupSize <= 0 {
		problems = append(problems, "WEBHOOK_DEDUP_SIZE deve ser positivo")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguracao, strings.Join(problems, "; "))
	}
	return nil
}
