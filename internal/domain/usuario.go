package domain

import "time"

// SubscriptionTier é o plano que o usuário está (nominalmente) pagando.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierWeekly  SubscriptionTier = "weekly"
	TierMonthly SubscriptionTier = "monthly"
	TierYearly  SubscriptionTier = "yearly"
)

// PaidTiers lista os planos pagos, na ordem em que aparecem para o usuário.
var PaidTiers = []SubscriptionTier{TierWeekly, TierMonthly, TierYearly}

// ParseTier converte o texto recebido (metadata, corpo de requisição) em um plano conhecido.
func ParseTier(s string) (SubscriptionTier, bool) {
	switch t := SubscriptionTier(s); t {
	case TierFree, TierWeekly, TierMonthly, TierYearly:
		return t, true
	}
	return "", false
}

func (t SubscriptionTier) IsPaid() bool {
	return t == TierWeekly || t == TierMonthly || t == TierYearly
}

// SubscriptionStatus é o estado da assinatura informado pelo processador de pagamento.
// É ele, e não o plano, que decide se o acesso premium vale neste momento.
type SubscriptionStatus string

const (
	// StatusNone indica um usuário que nunca assinou.
	StatusNone       SubscriptionStatus = ""
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

func ParseStatus(s string) (SubscriptionStatus, bool) {
	switch st := SubscriptionStatus(s); st {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusIncomplete:
		return st, true
	}
	return "", false
}

// BlocksCheckout diz se o status atual impede abrir um novo checkout
// (evita duas assinaturas simultâneas para o mesmo usuário).
func (s SubscriptionStatus) BlocksCheckout() bool {
	return s == StatusActive || s == StatusTrialing
}

type Usuario struct {
	ID    string `json:"id"`
	Nome  string `json:"nome" validate:"required"`
	Email string `json:"email" validate:"required,email"`

	// ID do cliente no Stripe (ex: "cus_..."). Uma vez definido, nunca volta a ficar vazio
	// e nunca pertence a outro usuário.
	StripeCustomerID string `json:"-"`

	// ID da assinatura no Stripe (ex: "sub_..."). Único entre todos os usuários.
	StripeSubscriptionID string `json:"-"`

	SubscriptionTier   SubscriptionTier   `json:"subscription_tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`

	// Fim do período atual. Depois disso o acesso acaba se não houver renovação.
	SubscriptionCurrentPeriodEnd time.Time `json:"subscription_current_period_end"`

	// Marcas d'água por campo: o instante do evento que escreveu cada campo pela última vez.
	TierUpdatedAt   time.Time `json:"-"`
	StatusUpdatedAt time.Time `json:"-"`
	PeriodUpdatedAt time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// HasPremiumAccess é a regra de acesso usada pelo app de chat: plano pago e status que ainda honra o plano.
func (u Usuario) HasPremiumAccess() bool {
	if !u.SubscriptionTier.IsPaid() {
		return false
	}
	return u.SubscriptionStatus == StatusActive || u.SubscriptionStatus == StatusTrialing
}

// SubscriptionPatch é uma atualização parcial da assinatura: campos nil mantêm o valor atual.
type SubscriptionPatch struct {
	StripeCustomerID     *string
	StripeSubscriptionID *string
	Tier                 *SubscriptionTier
	Status               *SubscriptionStatus
	CurrentPeriodEnd     *time.Time

	// EventAt ordena patches que disputam o mesmo campo.
	EventAt time.Time
}

// Normalize aplica a política de cancelamento imediato: status canceled
// derruba o plano para free e encerra o período no próprio instante do evento.
func (p SubscriptionPatch) Normalize() SubscriptionPatch {
	if p.Status != nil && *p.Status == StatusCanceled {
		free := TierFree
		end := p.EventAt
		p.Tier = &free
		p.CurrentPeriodEnd = &end
	}
	return p
}

// ApplySubscription mescla o patch no registro e diz se algo mudou.
// Campos cujo evento é mais antigo que a marca d'água do campo são ignorados;
// empates são aplicados na ordem de chegada. A troca do id da assinatura segue a
// marca d'água do plano.
func (u Usuario) ApplySubscription(p SubscriptionPatch) (Usuario, bool) {
	p = p.Normalize()
	out := u
	at := p.EventAt.UTC()

	if p.StripeCustomerID != nil && *p.StripeCustomerID != "" {
		out.StripeCustomerID = *p.StripeCustomerID
	}
	if p.StripeSubscriptionID != nil && *p.StripeSubscriptionID != "" && *p.StripeSubscriptionID != u.StripeSubscriptionID {
		// Patch de outra assinatura, mais antigo que o plano atual: só o customer id pode entrar.
		if u.StripeSubscriptionID != "" && at.Before(u.TierUpdatedAt) {
			return out, !sameSubscription(u, out)
		}
		out.StripeSubscriptionID = *p.StripeSubscriptionID
	}
	if p.Tier != nil && !at.Before(u.TierUpdatedAt) {
		out.SubscriptionTier = *p.Tier
		out.TierUpdatedAt = at
	}
	if p.Status != nil && !at.Before(u.StatusUpdatedAt) {
		out.SubscriptionStatus = *p.Status
		out.StatusUpdatedAt = at
	}
	if p.CurrentPeriodEnd != nil && !at.Before(u.PeriodUpdatedAt) {
		out.SubscriptionCurrentPeriodEnd = p.CurrentPeriodEnd.UTC()
		out.PeriodUpdatedAt = at
	}

	return out, !sameSubscription(u, out)
}

func sameSubscription(a, b Usuario) bool {
	return a.StripeCustomerID == b.StripeCustomerID &&
		a.StripeSubscriptionID == b.StripeSubscriptionID &&
		a.SubscriptionTier == b.SubscriptionTier &&
		a.SubscriptionStatus == b.SubscriptionStatus &&
		a.SubscriptionCurrentPeriodEnd.Equal(b.SubscriptionCurrentPeriodEnd) &&
		a.TierUpdatedAt.Equal(b.TierUpdatedAt) &&
		a.StatusUpdatedAt.Equal(b.StatusUpdatedAt) &&
		a.PeriodUpdatedAt.Equal(b.PeriodUpdatedAt)
}
