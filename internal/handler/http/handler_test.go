package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willjrcristo/chat-billing/internal/domain"
	"github.com/willjrcristo/chat-billing/internal/service"
)

// --- Mock da Camada de Serviço ---

// MockUsuarioService é uma implementação falsa da interface UsuarioService.
// Cada teste define só as funções que o cenário usa.
type MockUsuarioService struct {
	CreateUserFn      func(ctx context.Context, usuario domain.Usuario) (string, error)
	GetUserByIDFn     func(ctx context.Context, id string) (*domain.Usuario, error)
	GetAllUsersFn     func(ctx context.Context) ([]domain.Usuario, error)
	UpdateUserFn      func(ctx context.Context, id string, usuario domain.Usuario) error
	DeleteUserFn      func(ctx context.Context, id string) error
	GetSubscriptionFn func(ctx context.Context, userID string) (*service.Assinatura, error)
}

func (m *MockUsuarioService) CreateUser(ctx context.Context, usuario domain.Usuario) (string, error) {
	return m.CreateUserFn(ctx, usuario)
}

func (m *MockUsuarioService) GetUserByID(ctx context.Context, id string) (*domain.Usuario, error) {
	return m.GetUserByIDFn(ctx, id)
}

func (m *MockUsuarioService) GetAllUsers(ctx context.Context) ([]domain.Usuario, error) {
	return m.GetAllUsersFn(ctx)
}

func (m *MockUsuarioService) UpdateUser(ctx context.Context, id string, usuario domain.Usuario) error {
	return m.UpdateUserFn(ctx, id, usuario)
}

func (m *MockUsuarioService) DeleteUser(ctx context.Context, id string) error {
	return m.DeleteUserFn(ctx, id)
}

func (m *MockUsuarioService) GetSubscription(ctx context.Context, userID string) (*service.Assinatura, error) {
	return m.GetSubscriptionFn(ctx, userID)
}

// --- Testes do Handler ---

func TestUsuarioHandler_GetUserByID(t *testing.T) {
	t.Run("sucesso - deve retornar usuário e status 200", func(t *testing.T) {
		// Arrange
		mockService := &MockUsuarioService{
			GetUserByIDFn: func(ctx context.Context, id string) (*domain.Usuario, error) {
				assert.Equal(t, "u-1", id)
				return &domain.Usuario{ID: "u-1", Nome: "Teste", Email: "teste@email.com", StripeCustomerID: "cus_secreto"}, nil
			},
		}
		handler := NewUsuarioHandler(mockService)

		req := httptest.NewRequest("GET", "/usuarios/u-1", nil)
		rr := httptest.NewRecorder()

		// Precisamos de um roteador para que o chi possa extrair o {id} da URL
		router := chi.NewRouter()
		router.Mount("/usuarios", handler.Routes())

		// Act
		router.ServeHTTP(rr, req)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)

		var usuarioRetornado domain.Usuario
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usuarioRetornado))
		assert.Equal(t, "u-1", usuarioRetornado.ID)
		assert.Equal(t, "Teste", usuarioRetornado.Nome)
		// IDs do Stripe não saem na API.
		assert.NotContains(t, rr.Body.String(), "cus_secreto")
	})

	t.Run("erro - deve retornar não encontrado e status 404", func(t *testing.T) {
		// Arrange
		mockService := &MockUsuarioService{
			GetUserByIDFn: func(ctx context.Context, id string) (*domain.Usuario, error) {
				return nil, service.ErrUsuarioNaoEncontrado
			},
		}
		handler := NewUsuarioHandler(mockService)
		req := httptest.NewRequest("GET", "/usuarios/999", nil)
		rr := httptest.NewRecorder()
		router := chi.NewRouter()
		router.Mount("/usuarios", handler.Routes())

		// Act
		router.ServeHTTP(rr, req)

		// Assert
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestUsuarioHandler_CreateUser(t *testing.T) {
	t.Run("sucesso - deve criar usuário e retornar status 201", func(t *testing.T) {
		// Arrange
		mockService := &MockUsuarioService{
			CreateUserFn: func(ctx context.Context, usuario domain.Usuario) (string, error) {
				assert.Equal(t, "Novo User", usuario.Nome)
				// O plano enviado no corpo não chega ao serviço.
				assert.Empty(t, usuario.SubscriptionTier)
				return "u-5", nil
			},
		}
		handler := NewUsuarioHandler(mockService)

		body := []byte(`{"nome":"Novo User","email":"novo@email.com","subscription_tier":"yearly"}`)
		req := httptest.NewRequest("POST", "/usuarios", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		// Act
		handler.CreateUser(rr, req)

		// Assert
		assert.Equal(t, http.StatusCreated, rr.Code)
		var usuarioRetornado domain.Usuario
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usuarioRetornado))
		assert.Equal(t, "u-5", usuarioRetornado.ID)
		assert.Equal(t, domain.TierFree, usuarioRetornado.SubscriptionTier)
	})

	t.Run("erro - email inválido retorna 400 sem chamar o serviço", func(t *testing.T) {
		handler := NewUsuarioHandler(&MockUsuarioService{})

		req := httptest.NewRequest("POST", "/usuarios", bytes.NewBufferString(`{"nome":"X","email":"x"}`))
		rr := httptest.NewRecorder()

		handler.CreateUser(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUsuarioHandler_UpdateAndDelete(t *testing.T) {
	mockService := &MockUsuarioService{
		UpdateUserFn: func(ctx context.Context, id string, usuario domain.Usuario) error {
			if id == "999" {
				return service.ErrUsuarioNaoEncontrado
			}
			return nil
		},
		DeleteUserFn: func(ctx context.Context, id string) error {
			return nil
		},
		GetAllUsersFn: func(ctx context.Context) ([]domain.Usuario, error) {
			return nil, nil
		},
	}
	router := chi.NewRouter()
	router.Mount("/usuarios", NewUsuarioHandler(mockService).Routes())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"sucesso - atualiza", http.MethodPut, "/usuarios/u-1", `{"nome":"Ana","email":"ana@email.com"}`, http.StatusNoContent},
		{"erro - atualiza inexistente", http.MethodPut, "/usuarios/999", `{"nome":"Ana","email":"ana@email.com"}`, http.StatusNotFound},
		{"erro - corpo inválido", http.MethodPut, "/usuarios/u-1", `{`, http.StatusBadRequest},
		{"sucesso - remove", http.MethodDelete, "/usuarios/u-1", "", http.StatusNoContent},
		{"sucesso - lista vazia", http.MethodGet, "/usuarios", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
		})
	}

	t.Run("sucesso - lista vazia é um array JSON", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/usuarios", nil))
		assert.JSONEq(t, `[]`, rr.Body.String())
	})
}

func TestUsuarioHandler_GetAssinatura(t *testing.T) {
	mockService := &MockUsuarioService{
		GetSubscriptionFn: func(ctx context.Context, userID string) (*service.Assinatura, error) {
			assert.Equal(t, "u-1", userID)
			return &service.Assinatura{Tier: domain.TierMonthly, Status: domain.StatusPastDue}, nil
		},
	}
	router := chi.NewRouter()
	router.Mount("/usuarios", NewUsuarioHandler(mockService).Routes())
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/usuarios/u-1/assinatura", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"tier":"monthly","status":"past_due","premiumAccess":false}`, rr.Body.String())
}
