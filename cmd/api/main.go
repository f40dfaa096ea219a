package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/willjrcristo/chat-billing/docs" // Registra a documentação Swagger

	"github.com/willjrcristo/chat-billing/internal/config"
)

// @title           API de Cobrança do Chat
// @version         1.0
// @description     Assinaturas do app de chat: checkout, portal de cobrança e webhooks do Stripe.
// @termsOfService  http://swagger.io/terms/
//
// @contact.name   Will Cristo
// @contact.url    https://linkedin.com/in/willjrcristo
// @contact.email  willjrcristo@gmail.com
//
// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html
//
// @host      localhost:8080
// @BasePath  /
func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Encerrando com erro", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "chat-billing",
		Short:         "API de assinaturas do app de chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Sobe o servidor HTTP (padrão)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Aplica as migrações do banco e sai",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cfg)
			},
		},
	)

	return root
}
