package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testSecret = "whsec_test_secret"

func signed(t *testing.T, payload string, secret string, at time.Time) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: at,
	})
	return sp.Header
}

func eventPayload(id, kind, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2024-04-10","created":1778414400,"type":%q,"data":{"object":%s}}`, id, kind, object)
}

// basilPayload simula um endpoint configurado numa versão da API mais nova que a do stripe-go.
func basilPayload(id, kind, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2025-07-30.basil","created":1778414400,"type":%q,"data":{"object":%s}}`, id, kind, object)
}

const (
	checkoutObject     = `{"id":"cs_1","object":"checkout.session","customer":"cus_1","subscription":"sub_1","metadata":{"userId":"u1","tier":"monthly"}}`
	subscriptionObject = `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"trialing","current_period_end":1781092800,"metadata":{}}`
	invoiceObject      = `{"id":"in_1","object":"invoice","customer":"cus_1","subscription":"sub_1"}`
)

func TestAuthenticator_Authenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret, 5*time.Minute)

	t.Run("sucesso - decodifica checkout.session", func(t *testing.T) {
		payload := eventPayload("evt_1", string(KindCheckoutCompleted), checkoutObject)

		ev, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, KindCheckoutCompleted, ev.Kind)
		assert.Equal(t, ObjectCheckoutSession, ev.ObjectType)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.Equal(t, "cus_1", ev.CustomerID)
		assert.Equal(t, map[string]string{"userId": "u1", "tier": "monthly"}, ev.Metadata)
		assert.Equal(t, time.Unix(1778414400, 0).UTC(), ev.CreatedAt)
	})

	t.Run("sucesso - decodifica subscription", func(t *testing.T) {
		payload := eventPayload("evt_2", string(KindSubscriptionUpdated), subscriptionObject)

		ev, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		require.NoError(t, err)
		assert.Equal(t, ObjectSubscription, ev.ObjectType)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.Equal(t, "trialing", ev.Status)
		assert.Equal(t, time.Unix(1781092800, 0).UTC(), ev.CurrentPeriodEnd)
	})

	t.Run("sucesso - fatura usa o id da assinatura referenciada", func(t *testing.T) {
		payload := eventPayload("evt_3", string(KindInvoicePaymentFailed), invoiceObject)

		ev, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		require.NoError(t, err)
		assert.Equal(t, ObjectInvoice, ev.ObjectType)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
	})

	t.Run("sucesso - assinatura na versão basil traz o período dos itens", func(t *testing.T) {
		object := `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",` +
			`"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","current_period_start":1778414400,"current_period_end":1781092800}]}}`
		payload := basilPayload("evt_b1", string(KindSubscriptionUpdated), object)

		ev, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		require.NoError(t, err)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.Equal(t, "active", ev.Status)
		assert.Equal(t, time.Unix(1781092800, 0).UTC(), ev.CurrentPeriodEnd)
	})

	t.Run("sucesso - fatura na versão basil referencia a assinatura pelo parent", func(t *testing.T) {
		objects := []string{
			`{"id":"in_1","object":"invoice","customer":"cus_1","parent":{"type":"subscription_details","subscription_details":{"subscription":"sub_1"}}}`,
			`{"id":"in_1","object":"invoice","customer":"cus_1","parent":{"type":"subscription_details","subscription_details":{"subscription":{"id":"sub_1","object":"subscription"}}}}`,
		}
		for _, object := range objects {
			payload := basilPayload("evt_b2", string(KindInvoicePaymentFailed), object)

			ev, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

			require.NoError(t, err)
			assert.Equal(t, "sub_1", ev.SubscriptionID)
			assert.Equal(t, "cus_1", ev.CustomerID)
		}
	})

	t.Run("sucesso - fatura avulsa na versão basil fica sem assinatura", func(t *testing.T) {
		payload := basilPayload("evt_b3", string(KindInvoicePaid), `{"id":"in_2","object":"invoice","customer":"cus_1","parent":null}`)

		ev, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		require.NoError(t, err)
		assert.Empty(t, ev.SubscriptionID)
	})

	t.Run("erro - corpo adulterado", func(t *testing.T) {
		for _, kind := range []EventKind{KindCheckoutCompleted, KindSubscriptionUpdated, KindSubscriptionDeleted, KindInvoicePaid, KindInvoicePaymentFailed} {
			payload := eventPayload("evt_4", string(kind), subscriptionObject)
			header := signed(t, payload, testSecret, time.Now())
			tampered := eventPayload("evt_4", string(kind), `{"id":"sub_1","object":"subscription","status":"active"}`)

			_, err := auth.Authenticate([]byte(tampered), header)

			assert.ErrorIs(t, err, ErrInvalidSignature, string(kind))
		}
	})

	t.Run("erro - segredo diferente", func(t *testing.T) {
		payload := eventPayload("evt_5", string(KindSubscriptionDeleted), subscriptionObject)

		_, err := auth.Authenticate([]byte(payload), signed(t, payload, "whsec_outro", time.Now()))

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("erro - cabeçalho ausente", func(t *testing.T) {
		payload := eventPayload("evt_6", string(KindSubscriptionDeleted), subscriptionObject)

		_, err := auth.Authenticate([]byte(payload), "  ")

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("erro - segredo não configurado", func(t *testing.T) {
		payload := eventPayload("evt_7", string(KindSubscriptionDeleted), subscriptionObject)

		_, err := NewAuthenticator("", 0).Authenticate([]byte(payload), signed(t, payload, "", time.Now()))

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("erro - timestamp fora da tolerância", func(t *testing.T) {
		payload := eventPayload("evt_8", string(KindSubscriptionUpdated), subscriptionObject)

		_, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now().Add(-10*time.Minute)))

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("erro - evento autêntico com objeto malformado", func(t *testing.T) {
		payload := eventPayload("evt_9", string(KindSubscriptionUpdated), `{"id":"sub_1","object":"subscription","current_period_end":"amanhã"}`)

		_, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("erro - corpo autêntico que não é JSON", func(t *testing.T) {
		payload := "isto não é json"

		_, err := auth.Authenticate([]byte(payload), signed(t, payload, testSecret, time.Now()))

		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		kind     EventKind
		want     EventKind
		relevant bool
	}{
		{KindCheckoutCompleted, KindCheckoutCompleted, true},
		{KindSubscriptionUpdated, KindSubscriptionUpdated, true},
		{KindSubscriptionDeleted, KindSubscriptionDeleted, true},
		{KindInvoicePaid, KindInvoicePaid, true},
		{KindInvoicePaidAlias, KindInvoicePaid, true},
		{KindInvoicePaymentFailed, KindInvoicePaymentFailed, true},
		{"customer.created", "", false},
		{"checkout.session.expired", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := Classify(Event{Kind: tt.kind})
		assert.Equal(t, tt.relevant, ok, string(tt.kind))
		assert.Equal(t, tt.want, got, string(tt.kind))
	}
}
