package billing

import (
	"context"
	"log/slog"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

// Notifier avisa o usuário sobre eventos de cobrança.
type Notifier interface {
	PaymentFailed(ctx context.Context, u domain.Usuario)
}

// LogNotifier só registra o aviso; o envio de e-mail fica para o serviço de notificações do app.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PaymentFailed(ctx context.Context, u domain.Usuario) {
	n.logger.InfoContext(ctx, "Pagamento falhou, usuário deve ser avisado",
		"user_id", u.ID, "subscription_id", u.StripeSubscriptionID)
}
