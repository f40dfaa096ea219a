package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"

	"github.com/willjrcristo/chat-billing/internal/billing"
	"github.com/willjrcristo/chat-billing/internal/config"
	httphandler "github.com/willjrcristo/chat-billing/internal/handler/http"
	"github.com/willjrcristo/chat-billing/internal/repository"
	"github.com/willjrcristo/chat-billing/internal/service"
	"github.com/willjrcristo/chat-billing/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func runMigrate(cfg *config.Config) error {
	db, err := repository.Open(repository.DSN(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("falha ao abrir o banco: %w", err)
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		return err
	}
	slog.Info("💾 Migrações aplicadas", "database", cfg.DatabasePath)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.Info("🚀 Iniciando a API de cobrança...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	// --- BANCO DE DADOS ---
	db, err := repository.Open(repository.DSN(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("falha ao abrir o banco: %w", err)
	}
	defer db.Close()
	if err := repository.Migrate(db); err != nil {
		return err
	}
	slog.Info("💾 Conexão com o banco de dados estabelecida com sucesso.")

	// --- INJEÇÃO DE DEPENDÊNCIAS ---
	// DB -> Repository -> Billing -> Service -> Handler
	usuarioRepo := repository.NewSQLiteRepository(db)

	processor := billing.NewStripeProcessor(billing.NewStripeClient(cfg.StripeSecretKey, nil))

	ledger, closeLedger, err := newLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	usuarioService := service.NewUsuarioService(usuarioRepo, service.BillingDeps{
		Processor:       processor,
		Authenticator:   billing.NewAuthenticator(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance),
		Reconciler:      billing.NewReconciler(usuarioRepo, processor, billing.NewLogNotifier(slog.Default())),
		Ledger:          ledger,
		Prices:          cfg.StripePrices,
		SiteURL:         cfg.SiteURL,
		TrialPeriodDays: cfg.TrialPeriodDays,
	})

	store := httphandler.NewCookieStore(cfg.SessionSecret, strings.HasPrefix(cfg.SiteURL, "https://"))
	router := newRouter(routerDeps{
		usuarios: httphandler.NewUsuarioHandler(usuarioService),
		billing:  httphandler.NewBillingHandler(usuarioService, httphandler.NewSessionAuth(store, cfg.SessionName)),
		webhook:  httphandler.NewStripeWebhookHandler(usuarioService),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("✅ Servidor pronto para receber requisições", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("erro ao iniciar o servidor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Desligando o servidor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if tpErr := tp.Shutdown(shutdownCtx); tpErr != nil {
			slog.Warn("Falha ao descarregar spans", "error", tpErr)
		}
		return err
	})

	return g.Wait()
}

// newLedger usa Redis quando REDIS_URL está definida; sem ela, o registro fica em memória neste processo.
func newLedger(ctx context.Context, cfg *config.Config) (billing.Ledger, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("Ledger de webhooks em memória", "size", cfg.WebhookDedupSize, "ttl", cfg.WebhookDedupTTL)
		return billing.NewMemoryLedger(cfg.WebhookDedupSize, cfg.WebhookDedupTTL), func() {}, nil
	}

	client, err := billing.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Ledger de webhooks no Redis", "ttl", cfg.WebhookDedupTTL)
	return billing.NewRedisLedger(client, cfg.WebhookDedupTTL), func() { client.Close() }, nil
}

type routerDeps struct {
	usuarios *httphandler.UsuarioHandler
	billing  *httphandler.BillingHandler
	webhook  *httphandler.StripeWebhookHandler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(prometheusMiddleware)

	// Health check
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("API de cobrança está no ar! 🚀"))
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Mount("/usuarios", d.usuarios.Routes())

	r.Route("/api", func(api chi.Router) {
		// O webhook fica fora do grupo autenticado: quem chama é o Stripe.
		api.Post("/stripe/webhook", d.webhook.HandleStripeWebhook)
		d.billing.Register(api)
	})

	return r
}
