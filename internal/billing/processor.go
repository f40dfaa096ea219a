package billing

import (
	"context"
	"time"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

// CheckoutParams descreve a sessão de checkout hospedada que será criada no processador.
type CheckoutParams struct {
	UserID     string
	Email      string
	CustomerID string
	Tier       domain.SubscriptionTier
	PriceID    string

	SuccessURL      string
	CancelURL       string
	TrialPeriodDays int64
}

// SessionHandle identifica uma sessão hospedada (checkout ou portal).
type SessionHandle struct {
	ID  string `json:"sessionId,omitempty"`
	URL string `json:"url"`
}

// SubscriptionSnapshot é o estado autoritativo de uma assinatura lido ao vivo do processador.
type SubscriptionSnapshot struct {
	ID               string
	CustomerID       string
	Status           domain.SubscriptionStatus
	CurrentPeriodEnd time.Time
}

// Processor é o processador de pagamento remoto. Todas as chamadas bloqueiam e respeitam o ctx.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*SessionHandle, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*SessionHandle, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
}

// CheckoutMetadata é o único canal que liga o checkout.session.completed de volta a um usuário local.
// O Reconciler confia nesses valores apenas porque este sistema os escreveu na criação da sessão;
// todo novo ponto de criação de sessão precisa passar por aqui.
func CheckoutMetadata(userID string, tier domain.SubscriptionTier) map[string]string {
	return map[string]string{
		MetadataUserID: userID,
		MetadataTier:   string(tier),
	}
}

// statusFromProcessor fecha os status do Stripe no enum do domínio.
func statusFromProcessor(s string) (domain.SubscriptionStatus, bool) {
	if st, ok := domain.ParseStatus(s); ok {
		return st, true
	}
	switch s {
	case "incomplete_expired":
		return domain.StatusCanceled, true
	case "unpaid":
		return domain.StatusPastDue, true
	case "paused":
		return domain.StatusIncomplete, true
	}
	return "", false
}
