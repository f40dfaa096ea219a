package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

var tracer = otel.Tracer("github.com/willjrcristo/chat-billing/internal/billing")

// Outcome descreve o que aconteceu com um evento. Só ErrStoreFailure/ErrProcessor viram erro;
// o resto é confirmado ao Stripe para não gerar reenvio infinito.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeUnknownIdentity  Outcome = "unknown_identity"
	OutcomeUnknownMetadata  Outcome = "unknown_metadata"
	OutcomeIdentityConflict Outcome = "identity_conflict"
	OutcomeNoSubscription   Outcome = "no_subscription"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeRejected         Outcome = "rejected"
	OutcomeFailed           Outcome = "failed"
)

type Result struct {
	Kind    EventKind
	UserID  string
	Outcome Outcome
	Changed bool
}

// UserStore é o subconjunto do repositório de usuários que a reconciliação usa.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.Usuario, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Usuario, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Usuario, error)
	UpdateSubscription(ctx context.Context, userID string, patch domain.SubscriptionPatch) (*domain.Usuario, bool, error)
}

type handlerFunc func(ctx context.Context, ev Event) (Result, error)

// Reconciler aplica eventos relevantes ao registro do usuário, com um handler por tipo.
type Reconciler struct {
	store     UserStore
	processor Processor
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	handlers map[EventKind]handlerFunc
}

type ReconcilerOption func(*Reconciler)

// WithClock troca o relógio usado para eventos sem timestamp.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func WithLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

func NewReconciler(store UserStore, processor Processor, notifier Notifier, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:     store,
		processor: processor,
		notifier:  notifier,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = NewLogNotifier(r.logger)
	}

	r.handlers = map[EventKind]handlerFunc{
		KindCheckoutCompleted:    r.checkoutCompleted,
		KindSubscriptionUpdated:  r.subscriptionUpdated,
		KindSubscriptionDeleted:  r.subscriptionDeleted,
		KindInvoicePaid:          r.invoicePaid,
		KindInvoicePaymentFailed: r.invoicePaymentFailed,
	}
	return r
}

// Reconcile aplica um evento autenticado. Tipos fora da allow-list retornam OutcomeIgnored.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	kind, ok := Classify(ev)
	if !ok {
		return Result{Kind: ev.Kind, Outcome: OutcomeIgnored}, nil
	}

	ctx, span := tracer.Start(ctx, "billing.reconcile", trace.WithAttributes(
		attribute.String("billing.event_id", ev.ID),
		attribute.String("billing.event_type", string(kind)),
		attribute.String("billing.subscription_id", ev.SubscriptionID),
	))
	defer span.End()

	res, err := r.handlers[kind](ctx, ev)
	res.Kind = kind
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetAttributes(
		attribute.String("billing.outcome", string(res.Outcome)),
		attribute.String("billing.user_id", res.UserID),
	)
	return res, nil
}

// checkoutCompleted identifica o usuário pela metadata da sessão. A metadata é confiável só porque
// StartCheckout a escreveu (CheckoutMetadata) e o Stripe a devolve intacta. O status não vem do
// evento: checkout concluído não garante assinatura ativa, então ele é lido ao vivo. A ordenação
// usa o timestamp do próprio evento, como nos demais tipos.
func (r *Reconciler) checkoutCompleted(ctx context.Context, ev Event) (Result, error) {
	if ev.SubscriptionID == "" {
		r.logger.InfoContext(ctx, "Checkout sem assinatura, nada a reconciliar", "event_id", ev.ID)
		return Result{Outcome: OutcomeNoSubscription}, nil
	}

	userID := ev.Metadata[MetadataUserID]
	tier, ok := domain.ParseTier(ev.Metadata[MetadataTier])
	if userID == "" || !ok || !tier.IsPaid() {
		r.logger.WarnContext(ctx, "Checkout com metadata desconhecida",
			"event_id", ev.ID, "subscription_id", ev.SubscriptionID, "metadata", ev.Metadata)
		return Result{Outcome: OutcomeUnknownMetadata}, nil
	}

	user, err := r.store.GetByID(ctx, userID)
	if err != nil {
		return Result{UserID: userID}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if user == nil {
		r.logger.WarnContext(ctx, "Nenhum usuário para a metadata do checkout",
			"event_id", ev.ID, "user_id", userID)
		return Result{UserID: userID, Outcome: OutcomeUnknownIdentity}, nil
	}

	if ev.CustomerID != "" {
		owner, err := r.store.GetByStripeCustomerID(ctx, ev.CustomerID)
		if err != nil {
			return Result{UserID: userID}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
		}
		if owner != nil && owner.ID != user.ID {
			r.logger.WarnContext(ctx, "Cliente do Stripe já pertence a outro usuário",
				"event_id", ev.ID, "user_id", user.ID, "owner_id", owner.ID, "customer_id", ev.CustomerID)
			return Result{UserID: userID, Outcome: OutcomeIdentityConflict}, nil
		}
	}

	snap, err := r.processor.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return Result{UserID: userID}, fmt.Errorf("%w: %v", ErrProcessor, err)
	}

	// Reenvio de um checkout antigo cuja assinatura já acabou não pode tomar o lugar da atual.
	if user.StripeSubscriptionID != "" && user.StripeSubscriptionID != ev.SubscriptionID && snap.Status == domain.StatusCanceled {
		r.logger.InfoContext(ctx, "Checkout de assinatura encerrada ignorado",
			"event_id", ev.ID, "user_id", user.ID, "subscription_id", ev.SubscriptionID,
			"current_subscription_id", user.StripeSubscriptionID)
		return Result{UserID: user.ID, Outcome: OutcomeUnchanged}, nil
	}

	patch := domain.SubscriptionPatch{
		StripeCustomerID:     &ev.CustomerID,
		StripeSubscriptionID: &ev.SubscriptionID,
		Tier:                 &tier,
		Status:               &snap.Status,
		EventAt:              r.eventTime(ev),
	}
	if !snap.CurrentPeriodEnd.IsZero() {
		patch.CurrentPeriodEnd = &snap.CurrentPeriodEnd
	}
	return r.apply(ctx, ev, user.ID, patch)
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, ev Event) (Result, error) {
	user, res, err := r.userBySubscription(ctx, ev)
	if user == nil {
		return res, err
	}

	status, ok := statusFromProcessor(ev.Status)
	if !ok {
		r.logger.WarnContext(ctx, "Status de assinatura desconhecido no evento",
			"event_id", ev.ID, "subscription_id", ev.SubscriptionID, "status", ev.Status)
		return Result{UserID: user.ID, Outcome: OutcomeUnknownMetadata}, nil
	}

	patch := domain.SubscriptionPatch{
		Status:  &status,
		EventAt: r.eventTime(ev),
	}
	if !ev.CurrentPeriodEnd.IsZero() {
		patch.CurrentPeriodEnd = &ev.CurrentPeriodEnd
	}
	return r.apply(ctx, ev, user.ID, patch)
}

// subscriptionDeleted encerra o acesso no instante do evento, não no fim do período.
func (r *Reconciler) subscriptionDeleted(ctx context.Context, ev Event) (Result, error) {
	user, res, err := r.userBySubscription(ctx, ev)
	if user == nil {
		return res, err
	}

	at := r.eventTime(ev)
	free := domain.TierFree
	canceled := domain.StatusCanceled
	return r.apply(ctx, ev, user.ID, domain.SubscriptionPatch{
		Tier:             &free,
		Status:           &canceled,
		CurrentPeriodEnd: &at,
		EventAt:          at,
	})
}

func (r *Reconciler) invoicePaid(ctx context.Context, ev Event) (Result, error) {
	if ev.SubscriptionID == "" {
		return Result{Outcome: OutcomeNoSubscription}, nil
	}
	user, res, err := r.userBySubscription(ctx, ev)
	if user == nil {
		return res, err
	}

	active := domain.StatusActive
	return r.apply(ctx, ev, user.ID, domain.SubscriptionPatch{
		Status:  &active,
		EventAt: r.eventTime(ev),
	})
}

// invoicePaymentFailed marca past_due e não toca no plano: o usuário mantém o plano nominal
// enquanto o Stripe tenta cobrar de novo. Quem decide acesso deve olhar o status.
func (r *Reconciler) invoicePaymentFailed(ctx context.Context, ev Event) (Result, error) {
	if ev.SubscriptionID == "" {
		return Result{Outcome: OutcomeNoSubscription}, nil
	}
	user, res, err := r.userBySubscription(ctx, ev)
	if user == nil {
		return res, err
	}

	pastDue := domain.StatusPastDue
	res, err = r.apply(ctx, ev, user.ID, domain.SubscriptionPatch{
		Status:  &pastDue,
		EventAt: r.eventTime(ev),
	})
	if err == nil && res.Changed {
		r.notifier.PaymentFailed(ctx, *user)
	}
	return res, err
}

// userBySubscription resolve o usuário pelo id da assinatura. Sem usuário, devolve o Result
// de identidade desconhecida (ou o erro de repositório) pronto para o handler retornar.
func (r *Reconciler) userBySubscription(ctx context.Context, ev Event) (*domain.Usuario, Result, error) {
	user, err := r.store.GetByStripeSubscriptionID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, Result{}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if user == nil {
		r.logger.WarnContext(ctx, "Nenhum usuário com esta assinatura",
			"event_id", ev.ID, "event_type", ev.Kind, "subscription_id", ev.SubscriptionID)
		return nil, Result{Outcome: OutcomeUnknownIdentity}, nil
	}
	return user, Result{}, nil
}

func (r *Reconciler) apply(ctx context.Context, ev Event, userID string, patch domain.SubscriptionPatch) (Result, error) {
	u, changed, err := r.store.UpdateSubscription(ctx, userID, patch)
	if err != nil {
		return Result{UserID: userID}, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	if u == nil {
		// Usuário removido entre a busca e a escrita.
		r.logger.WarnContext(ctx, "Usuário sumiu durante a reconciliação", "event_id", ev.ID, "user_id", userID)
		return Result{UserID: userID, Outcome: OutcomeUnknownIdentity}, nil
	}

	outcome := OutcomeUnchanged
	if changed {
		outcome = OutcomeApplied
	}
	r.logger.InfoContext(ctx, "Assinatura reconciliada",
		"event_id", ev.ID, "event_type", ev.Kind, "user_id", userID, "outcome", outcome,
		"tier", u.SubscriptionTier, "status", u.SubscriptionStatus)
	return Result{UserID: userID, Outcome: outcome, Changed: changed}, nil
}

func (r *Reconciler) eventTime(ev Event) time.Time {
	if ev.CreatedAt.IsZero() {
		return r.now().UTC()
	}
	return ev.CreatedAt
}
