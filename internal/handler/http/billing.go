package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/willjrcristo/chat-billing/internal/billing"
	"github.com/willjrcristo/chat-billing/internal/service"
)

// BillingService cobre checkout, portal e leitura da assinatura do usuário logado.
type BillingService interface {
	assinaturaReader

	StartCheckout(ctx context.Context, userID, planID string) (*billing.SessionHandle, error)
	ManageBilling(ctx context.Context, userID string) (*billing.SessionHandle, error)
}

// BillingHandler atende o app de chat; todas as rotas exigem sessão.
type BillingHandler struct {
	service  BillingService
	auth     *SessionAuth
	validate *validator.Validate
}

func NewBillingHandler(s BillingService, auth *SessionAuth) *BillingHandler {
	return &BillingHandler{
		service:  s,
		auth:     auth,
		validate: validator.New(),
	}
}

// Routes devolve as rotas num roteador próprio, para montar em /api.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register registra as rotas autenticadas num roteador existente, ao lado de rotas públicas.
func (h *BillingHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireUser)

		r.Get("/subscription", h.GetSubscription)
		r.Post("/subscription/checkout", h.CreateCheckout)
		r.Post("/billing/customer-portal", h.CreateCustomerPortal)
	})
}

type checkoutRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

// @Summary      Inicia o checkout de uma assinatura
// @Description  Cria uma sessão de checkout hospedada no Stripe para o plano escolhido pelo usuário logado
// @Tags         assinaturas
// @Accept       json
// @Produce      json
// @Param        plano  body      checkoutRequest  true  "Plano desejado (weekly, monthly, yearly)"
// @Success      200    {object}  billing.SessionHandle
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/subscription/checkout [post]
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, service.ErrPlanoInvalido.Error())
		return
	}

	sess, err := h.service.StartCheckout(r.Context(), userID, req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAssinaturaJaAtiva), errors.Is(err, service.ErrPlanoInvalido):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUsuarioNaoEncontrado):
			respondWithError(w, http.StatusNotFound, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Erro interno. Tente novamente.")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, sess)
}

// @Summary      Abre o portal de cobrança
// @Description  Cria uma sessão do portal do cliente Stripe para o usuário logado gerenciar a assinatura
// @Tags         assinaturas
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/billing/customer-portal [post]
func (h *BillingHandler) CreateCustomerPortal(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	sess, err := h.service.ManageBilling(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSemCliente):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUsuarioNaoEncontrado):
			respondWithError(w, http.StatusNotFound, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Erro ao criar sessão do portal")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"url": sess.URL})
}

// @Summary      Assinatura do usuário logado
// @Description  Retorna plano, status e acesso premium do usuário da sessão
// @Tags         assinaturas
// @Produce      json
// @Success      200  {object}  service.Assinatura
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/subscription [get]
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	respondWithAssinatura(w, r, h.service, userID)
}

// --- WEBHOOK ---

// WebhookService processa o corpo bruto de um webhook do Stripe.
type WebhookService interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
}

type StripeWebhookHandler struct {
	service WebhookService
}

func NewStripeWebhookHandler(s WebhookService) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		service: s,
	}
}

const maxWebhookBodyBytes = int64(65536)

// HandleStripeWebhook recebe os eventos do Stripe. O corpo precisa chegar intacto: a assinatura
// é calculada sobre os bytes exatos enviados.
// @Summary      Webhook do Stripe
// @Description  Recebe eventos assinados do Stripe e atualiza a assinatura do usuário
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header    string  true  "Assinatura HMAC do Stripe"
// @Success      200               {object}  map[string]bool
// @Failure      400               {object}  map[string]string
// @Failure      500               {object}  map[string]string
// @Router       /api/stripe/webhook [post]
func (h *StripeWebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusBadRequest, "Corpo da requisição muito grande")
			return
		}
		slog.Error("Erro ao ler o corpo do webhook", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Erro ao ler corpo da requisição")
		return
	}

	err = h.service.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			respondWithError(w, http.StatusBadRequest, "Falha na verificação da assinatura do webhook")
		case errors.Is(err, billing.ErrMalformedEvent):
			respondWithError(w, http.StatusBadRequest, "Evento malformado")
		default:
			respondWithError(w, http.StatusInternalServerError, "Erro interno ao processar webhook")
		}
		return
	}

	// 200 confirma o recebimento; qualquer outro código faz o Stripe reenviar.
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
