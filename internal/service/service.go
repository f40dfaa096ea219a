package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/willjrcristo/chat-billing/internal/billing"
	"github.com/willjrcristo/chat-billing/internal/domain"
	"github.com/willjrcristo/chat-billing/internal/repository"
)

// Erros de negócio de usuários e assinaturas.
var (
	ErrUsuarioNaoEncontrado = errors.New("usuário não encontrado")
	ErrDadosInvalidos       = errors.New("dados do usuário inválidos")
	ErrAssinaturaJaAtiva    = errors.New("usuário já possui uma assinatura ativa; gerencie pelo portal de cobrança")
	ErrPlanoInvalido        = errors.New("plano inválido")
	ErrSemCliente           = errors.New("usuário ainda não é cliente do stripe")
	ErrConfiguracao         = errors.New("cobrança não configurada para este plano")
)

var tracer = otel.Tracer("github.com/willjrcristo/chat-billing/internal/service")

// WebhookAuthenticator verifica e decodifica o corpo bruto de um webhook.
type WebhookAuthenticator interface {
	Authenticate(payload []byte, signature string) (billing.Event, error)
}

// EventReconciler aplica um evento autenticado ao registro do usuário.
type EventReconciler interface {
	Reconcile(ctx context.Context, ev billing.Event) (billing.Result, error)
}

// BillingDeps agrupa os colaboradores de cobrança. Ledger nil desliga a deduplicação.
type BillingDeps struct {
	Processor     billing.Processor
	Authenticator WebhookAuthenticator
	Reconciler    EventReconciler
	Ledger        billing.Ledger

	Prices          map[domain.SubscriptionTier]string
	SiteURL         string
	TrialPeriodDays int64
}

// UsuarioService encapsula a lógica de negócio para usuários e assinaturas.
type UsuarioService struct {
	repo     repository.UsuarioRepository
	billing  BillingDeps
	validate *validator.Validate
}

func NewUsuarioService(repo repository.UsuarioRepository, deps BillingDeps) *UsuarioService {
	return &UsuarioService{
		repo:     repo,
		billing:  deps,
		validate: validator.New(),
	}
}

// --- CRUD ---

func (s *UsuarioService) CreateUser(ctx context.Context, usuario domain.Usuario) (string, error) {
	if err := s.validate.Struct(usuario); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDadosInvalidos, err)
	}
	// Campos de assinatura só mudam pelos webhooks.
	return s.repo.Create(ctx, domain.Usuario{Nome: usuario.Nome, Email: usuario.Email})
}

func (s *UsuarioService) GetUserByID(ctx context.Context, id string) (*domain.Usuario, error) {
	usuario, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if usuario == nil {
		return nil, ErrUsuarioNaoEncontrado
	}
	return usuario, nil
}

func (s *UsuarioService) GetAllUsers(ctx context.Context) ([]domain.Usuario, error) {
	return s.repo.GetAll(ctx)
}

func (s *UsuarioService) UpdateUser(ctx context.Context, id string, usuario domain.Usuario) error {
	if err := s.validate.Struct(usuario); err != nil {
		return fmt.Errorf("%w: %v", ErrDadosInvalidos, err)
	}
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, usuario)
}

func (s *UsuarioService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// --- ASSINATURA ---

// Assinatura é a visão da assinatura exposta ao app de chat.
type Assinatura struct {
	Tier             domain.SubscriptionTier   `json:"tier"`
	Status           domain.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time                `json:"currentPeriodEnd,omitempty"`
	PremiumAccess    bool                      `json:"premiumAccess"`
}

func (s *UsuarioService) GetSubscription(ctx context.Context, userID string) (*Assinatura, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	a := &Assinatura{
		Tier:          u.SubscriptionTier,
		Status:        u.SubscriptionStatus,
		PremiumAccess: u.HasPremiumAccess(),
	}
	if !u.SubscriptionCurrentPeriodEnd.IsZero() {
		end := u.SubscriptionCurrentPeriodEnd
		a.CurrentPeriodEnd = &end
	}
	return a, nil
}

// StartCheckout abre uma sessão de checkout hospedada para o plano pedido.
// A ordem das verificações importa: quem já assina recebe ErrAssinaturaJaAtiva mesmo com plano inválido.
func (s *UsuarioService) StartCheckout(ctx context.Context, userID, planID string) (*billing.SessionHandle, error) {
	ctx, span := tracer.Start(ctx, "service.StartCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("billing.user_id", userID), attribute.String("billing.plan", planID))

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.SubscriptionStatus.BlocksCheckout() {
		billing.ObserveSession("checkout", "already_subscribed")
		return nil, ErrAssinaturaJaAtiva
	}

	tier, ok := domain.ParseTier(planID)
	if !ok || !tier.IsPaid() {
		billing.ObserveSession("checkout", "invalid_plan")
		return nil, ErrPlanoInvalido
	}

	priceID := s.billing.Prices[tier]
	if priceID == "" {
		slog.ErrorContext(ctx, "Plano sem preço configurado", "tier", tier)
		billing.ObserveSession("checkout", "error")
		return nil, fmt.Errorf("%w: %s", ErrConfiguracao, tier)
	}

	sess, err := s.billing.Processor.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:          user.ID,
		Email:           user.Email,
		CustomerID:      user.StripeCustomerID,
		Tier:            tier,
		PriceID:         priceID,
		SuccessURL:      s.billing.SiteURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       s.billing.SiteURL + "/?cancelled=true",
		TrialPeriodDays: s.billing.TrialPeriodDays,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "Falha ao criar a sessão de checkout na Stripe", "user_id", user.ID, "error", err)
		billing.ObserveSession("checkout", "error")
		return nil, err
	}

	slog.InfoContext(ctx, "Sessão de checkout criada", "user_id", user.ID, "tier", tier, "session_id", sess.ID)
	billing.ObserveSession("checkout", "created")
	return sess, nil
}

// ManageBilling abre o portal de cobrança do Stripe para quem já é cliente.
func (s *UsuarioService) ManageBilling(ctx context.Context, userID string) (*billing.SessionHandle, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		billing.ObserveSession("portal", "no_customer")
		return nil, ErrSemCliente
	}

	sess, err := s.billing.Processor.CreatePortalSession(ctx, user.StripeCustomerID, s.billing.SiteURL+"/")
	if err != nil {
		slog.ErrorContext(ctx, "Falha ao criar sessão do portal", "user_id", user.ID, "error", err)
		billing.ObserveSession("portal", "error")
		return nil, err
	}

	billing.ObserveSession("portal", "created")
	return sess, nil
}

// --- WEBHOOK ---

// HandleStripeWebhook autentica, classifica, deduplica e reconcilia um webhook.
// Retorna billing.ErrInvalidSignature/ErrMalformedEvent para rejeição e qualquer outro erro
// para falha de processamento (o Stripe reenvia). nil significa confirmar o recebimento.
func (s *UsuarioService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := tracer.Start(ctx, "service.HandleStripeWebhook")
	defer span.End()

	ev, err := s.billing.Authenticator.Authenticate(payload, signature)
	if err != nil {
		slog.WarnContext(ctx, "Webhook da Stripe rejeitado", "error", err)
		billing.ObserveWebhook("unknown", billing.OutcomeRejected)
		span.SetStatus(codes.Error, "rejected")
		return err
	}
	span.SetAttributes(attribute.String("billing.event_id", ev.ID), attribute.String("billing.event_type", string(ev.Kind)))

	kind, ok := billing.Classify(ev)
	if !ok {
		slog.InfoContext(ctx, "Webhook da Stripe recebido, mas não tratado", "event_id", ev.ID, "event_type", ev.Kind)
		billing.ObserveWebhook(ev.Kind, billing.OutcomeIgnored)
		return nil
	}

	if s.seen(ctx, ev.ID) {
		slog.InfoContext(ctx, "Webhook duplicado ignorado", "event_id", ev.ID, "event_type", kind)
		billing.ObserveWebhook(kind, billing.OutcomeDuplicate)
		return nil
	}

	res, err := s.billing.Reconciler.Reconcile(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "Falha ao reconciliar webhook", "event_id", ev.ID, "event_type", kind, "error", err)
		billing.ObserveWebhook(kind, billing.OutcomeFailed)
		return err
	}

	billing.ObserveWebhook(res.Kind, res.Outcome)
	s.mark(ctx, ev.ID)
	return nil
}

// seen consulta o ledger. Falha do ledger não bloqueia: a mesclagem idempotente cobre o reprocessamento.
func (s *UsuarioService) seen(ctx context.Context, eventID string) bool {
	if s.billing.Ledger == nil || eventID == "" {
		return false
	}
	ok, err := s.billing.Ledger.Seen(ctx, eventID)
	if err != nil {
		slog.WarnContext(ctx, "Falha ao consultar ledger de webhooks", "event_id", eventID, "error", err)
		return false
	}
	return ok
}

func (s *UsuarioService) mark(ctx context.Context, eventID string) {
	if s.billing.Ledger == nil || eventID == "" {
		return
	}
	if err := s.billing.Ledger.Mark(ctx, eventID); err != nil {
		slog.WarnContext(ctx, "Falha ao registrar webhook no ledger", "event_id", eventID, "error", err)
	}
}
