package billing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

func TestLogNotifier_PaymentFailed(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	u := domain.Usuario{ID: "u1", Email: "ana@email.com", StripeSubscriptionID: "sub_1"}

	// Act
	n.PaymentFailed(context.Background(), u)

	// Assert
	assert.Contains(t, buf.String(), `"user_id":"u1"`)
	assert.Contains(t, buf.String(), `"subscription_id":"sub_1"`)
	assert.NotContains(t, buf.String(), "ana@email.com")
}
