// Package billing mantém o plano/status de assinatura de cada usuário consistente com o Stripe.
//
// O fluxo assíncrono é: Authenticator verifica a assinatura do webhook, Classify descarta tipos
// irrelevantes e o Reconciler aplica o evento ao repositório de usuários. Entregas duplicadas e
// fora de ordem são toleradas pela mesclagem idempotente de domain.Usuario.ApplySubscription.
package billing

import (
	"errors"
	"time"
)

// Erros que o chamador precisa distinguir. Identidade desconhecida não é erro: vira Outcome.
var (
	// ErrInvalidSignature: assinatura ausente, adulterada ou expirada. Nunca há retry interno.
	ErrInvalidSignature = errors.New("assinatura do webhook inválida")
	// ErrMalformedEvent: evento autêntico cujo objeto não pôde ser decodificado.
	ErrMalformedEvent = errors.New("evento do stripe malformado")
	// ErrStoreFailure: falha de leitura/escrita no repositório; o Stripe reenvia o evento.
	ErrStoreFailure = errors.New("falha no repositório de usuários")
	// ErrProcessor: a consulta ao vivo no Stripe falhou; também depende do reenvio.
	ErrProcessor = errors.New("falha ao consultar o stripe")
)

// EventKind é o tipo do evento conforme enviado pelo Stripe.
type EventKind string

const (
	KindCheckoutCompleted    EventKind = "checkout.session.completed"
	KindSubscriptionUpdated  EventKind = "customer.subscription.updated"
	KindSubscriptionDeleted  EventKind = "customer.subscription.deleted"
	KindInvoicePaid          EventKind = "invoice.payment_succeeded"
	KindInvoicePaidAlias     EventKind = "invoice.paid"
	KindInvoicePaymentFailed EventKind = "invoice.payment_failed"
)

// ObjectType é o campo "object" do payload do evento.
type ObjectType string

const (
	ObjectCheckoutSession ObjectType = "checkout.session"
	ObjectSubscription    ObjectType = "subscription"
	ObjectInvoice         ObjectType = "invoice"
)

// Chaves de metadata gravadas pelo StartCheckout e devolvidas pelo Stripe no checkout.session.completed.
const (
	MetadataUserID = "userId"
	MetadataTier   = "tier"
)

// Event é a forma normalizada de um webhook já autenticado. Existe só durante o processamento.
type Event struct {
	ID         string
	Kind       EventKind
	CreatedAt  time.Time
	ObjectType ObjectType

	SubscriptionID string
	CustomerID     string
	Metadata       map[string]string

	// Preenchidos apenas para objetos subscription.
	Status           string
	CurrentPeriodEnd time.Time
}
