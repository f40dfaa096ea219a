package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

// StripeProcessor implementa Processor sobre um client.API injetado, sem usar stripe.Key global.
type StripeProcessor struct {
	api *client.API
}

// NewStripeClient cria o cliente do Stripe. backends nil usa os endpoints padrão.
func NewStripeClient(secretKey string, backends *stripe.Backends) *client.API {
	return client.New(secretKey, backends)
}

func NewStripeProcessor(api *client.API) *StripeProcessor {
	return &StripeProcessor{api: api}
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in CheckoutParams) (*SessionHandle, error) {
	metadata := CheckoutMetadata(in.UserID, in.Tier)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:               stripe.String(in.SuccessURL),
		CancelURL:                stripe.String(in.CancelURL),
		ClientReferenceID:        stripe.String(in.UserID),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
		AllowPromotionCodes:      stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if in.TrialPeriodDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(in.TrialPeriodDays)
	}

	// O Stripe não aceita customer e customer_email juntos.
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	} else if in.Email != "" {
		params.CustomerEmail = stripe.String(in.Email)
	}

	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar sessão de checkout: %w", err)
	}
	return &SessionHandle{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*SessionHandle, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar sessão do portal: %w", err)
	}
	return &SessionHandle{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar assinatura %s: %w", subscriptionID, err)
	}

	status, ok := statusFromProcessor(string(sub.Status))
	if !ok {
		slog.Warn("Status de assinatura desconhecido, tratando como incomplete",
			"subscription_id", sub.ID, "status", sub.Status)
		status = domain.StatusIncomplete
	}

	snap := &SubscriptionSnapshot{
		ID:     sub.ID,
		Status: status,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		snap.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return snap, nil
}
