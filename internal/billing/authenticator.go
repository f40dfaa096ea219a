package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Authenticator verifica que o webhook veio do Stripe antes de qualquer leitura dos campos de negócio.
type Authenticator struct {
	secret    string
	tolerance time.Duration
}

func NewAuthenticator(secret string, tolerance time.Duration) *Authenticator {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Authenticator{
		secret:    secret,
		tolerance: tolerance,
	}
}

// Authenticate confere o HMAC do cabeçalho Stripe-Signature e a janela de tolerância do timestamp
// e só então decodifica o corpo. Falhas de verificação retornam ErrInvalidSignature.
func (a *Authenticator) Authenticate(payload []byte, signature string) (Event, error) {
	if strings.TrimSpace(signature) == "" || a.secret == "" {
		return Event{}, fmt.Errorf("%w: assinatura ou segredo ausente", ErrInvalidSignature)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, a.secret, webhook.ConstructEventOptions{
		Tolerance:                a.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return decodeEvent(ev)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrTooOld)
}

func decodeEvent(ev stripe.Event) (Event, error) {
	out := Event{
		ID:   ev.ID,
		Kind: EventKind(ev.Type),
	}
	if ev.Created > 0 {
		out.CreatedAt = time.Unix(ev.Created, 0).UTC()
	}
	if ev.Data == nil {
		return out, nil
	}

	objectType, _ := ev.Data.Object["object"].(string)
	out.ObjectType = ObjectType(objectType)

	switch out.ObjectType {
	case ObjectCheckoutSession:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("%w: checkout.session: %v", ErrMalformedEvent, err)
		}
		if s.Subscription != nil {
			out.SubscriptionID = s.Subscription.ID
		}
		if s.Customer != nil {
			out.CustomerID = s.Customer.ID
		}
		out.Metadata = s.Metadata

	case ObjectSubscription:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return Event{}, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
		}
		out.SubscriptionID = sub.ID
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		out.Metadata = sub.Metadata
		out.Status = string(sub.Status)
		end := sub.CurrentPeriodEnd
		if end == 0 {
			fields, err := decodeNewerFields(ev.Data.Raw)
			if err != nil {
				return Event{}, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
			}
			end = fields.itemPeriodEnd()
		}
		if end > 0 {
			out.CurrentPeriodEnd = time.Unix(end, 0).UTC()
		}

	case ObjectInvoice:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return Event{}, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
		}
		// O id que importa é o da assinatura referenciada, não o da fatura.
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		} else {
			fields, err := decodeNewerFields(ev.Data.Raw)
			if err != nil {
				return Event{}, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
			}
			out.SubscriptionID = string(fields.Parent.SubscriptionDetails.Subscription)
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
	}

	return out, nil
}

// newerFields lê os campos que mudaram de lugar a partir da versão 2025-03-31.basil da API,
// que os tipos do stripe-go v78 não conhecem: o fim do período passou para os itens da
// assinatura e a fatura referencia a assinatura em parent.subscription_details.
type newerFields struct {
	Items struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Parent struct {
		SubscriptionDetails struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func decodeNewerFields(raw []byte) (newerFields, error) {
	var f newerFields
	err := json.Unmarshal(raw, &f)
	return f, err
}

// itemPeriodEnd usa o primeiro item com período; assinaturas deste app têm um único preço.
func (f newerFields) itemPeriodEnd() int64 {
	for _, item := range f.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return item.CurrentPeriodEnd
		}
	}
	return 0
}

// expandableID aceita tanto o id quanto o objeto expandido ({"id": ...}).
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}
