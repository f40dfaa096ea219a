package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/willjrcristo/chat-billing/internal/domain"
	"github.com/willjrcristo/chat-billing/internal/service"
)

type assinaturaReader interface {
	GetSubscription(ctx context.Context, userID string) (*service.Assinatura, error)
}

// UsuarioService é o que o UsuarioHandler precisa da camada de serviço.
type UsuarioService interface {
	assinaturaReader

	CreateUser(ctx context.Context, usuario domain.Usuario) (string, error)
	GetUserByID(ctx context.Context, id string) (*domain.Usuario, error)
	GetAllUsers(ctx context.Context) ([]domain.Usuario, error)
	UpdateUser(ctx context.Context, id string, usuario domain.Usuario) error
	DeleteUser(ctx context.Context, id string) error
}

// UsuarioHandler lida com as rotas de /usuarios.
type UsuarioHandler struct {
	service  UsuarioService
	validate *validator.Validate
}

func NewUsuarioHandler(s UsuarioService) *UsuarioHandler {
	return &UsuarioHandler{
		service:  s,
		validate: validator.New(),
	}
}

// Routes define e retorna todas as rotas que este handler gerencia.
func (h *UsuarioHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateUser)                  // POST /usuarios
	r.Get("/", h.GetAllUsers)                  // GET /usuarios
	r.Get("/{id}", h.GetUserByID)              // GET /usuarios/{id}
	r.Put("/{id}", h.UpdateUser)               // PUT /usuarios/{id}
	r.Delete("/{id}", h.DeleteUser)            // DELETE /usuarios/{id}
	r.Get("/{id}/assinatura", h.GetAssinatura) // GET /usuarios/{id}/assinatura

	return r
}

// usuarioRequest é o corpo aceito na criação e atualização. Campos de assinatura não entram aqui.
type usuarioRequest struct {
	Nome  string `json:"nome" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func (h *UsuarioHandler) decodeUsuario(r *http.Request) (domain.Usuario, error) {
	var req usuarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.Usuario{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.Usuario{}, err
	}
	return domain.Usuario{Nome: req.Nome, Email: req.Email}, nil
}

// @Summary      Cria um novo usuário
// @Description  Adiciona um novo usuário ao banco de dados com base nos dados fornecidos
// @Tags         usuarios
// @Accept       json
// @Produce      json
// @Param        usuario  body      usuarioRequest  true  "Dados do usuário para criação"
// @Success      201      {object}  domain.Usuario
// @Failure      400      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /usuarios [post]
func (h *UsuarioHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	usuario, err := h.decodeUsuario(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}

	newID, err := h.service.CreateUser(r.Context(), usuario)
	if err != nil {
		if errors.Is(err, service.ErrDadosInvalidos) {
			respondWithError(w, http.StatusBadRequest, service.ErrDadosInvalidos.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Erro ao criar usuário")
		}
		return
	}

	usuario.ID = newID
	usuario.SubscriptionTier = domain.TierFree
	respondWithJSON(w, http.StatusCreated, usuario)
}

// @Summary      Lista todos os usuários
// @Description  Retorna uma lista com todos os usuários cadastrados
// @Tags         usuarios
// @Produce      json
// @Success      200  {array}   domain.Usuario
// @Failure      500  {object}  map[string]string
// @Router       /usuarios [get]
func (h *UsuarioHandler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	usuarios, err := h.service.GetAllUsers(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Erro ao buscar usuários")
		return
	}
	if usuarios == nil {
		usuarios = []domain.Usuario{}
	}
	respondWithJSON(w, http.StatusOK, usuarios)
}

// @Summary      Busca um usuário por ID
// @Description  Retorna os dados de um usuário específico com base no seu ID
// @Tags         usuarios
// @Produce      json
// @Param        id   path      string  true  "ID do Usuário"
// @Success      200  {object}  domain.Usuario
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /usuarios/{id} [get]
func (h *UsuarioHandler) GetUserByID(w http.ResponseWriter, r *http.Request) {
	usuario, err := h.service.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrUsuarioNaoEncontrado) {
			respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Erro ao buscar usuário")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, usuario)
}

// @Summary      Atualiza um usuário
// @Description  Atualiza nome e email de um usuário existente
// @Tags         usuarios
// @Accept       json
// @Produce      json
// @Param        id       path      string          true  "ID do Usuário"
// @Param        usuario  body      usuarioRequest  true  "Dados do usuário para atualização"
// @Success      204      {string}  string "No Content"
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /usuarios/{id} [put]
func (h *UsuarioHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	usuario, err := h.decodeUsuario(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}

	err = h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), usuario)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsuarioNaoEncontrado):
			respondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrDadosInvalidos):
			respondWithError(w, http.StatusBadRequest, service.ErrDadosInvalidos.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Erro ao atualizar usuário")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Deleta um usuário
// @Description  Remove um usuário do banco de dados com base no seu ID
// @Tags         usuarios
// @Produce      json
// @Param        id   path      string  true  "ID do Usuário"
// @Success      204  {string}  string "No Content"
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /usuarios/{id} [delete]
func (h *UsuarioHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrUsuarioNaoEncontrado) {
			respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Erro ao deletar usuário")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Consulta a assinatura de um usuário
// @Description  Retorna plano, status, fim do período e se o acesso premium está liberado
// @Tags         assinaturas
// @Produce      json
// @Param        id   path      string  true  "ID do Usuário"
// @Success      200  {object}  service.Assinatura
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /usuarios/{id}/assinatura [get]
func (h *UsuarioHandler) GetAssinatura(w http.ResponseWriter, r *http.Request) {
	respondWithAssinatura(w, r, h.service, chi.URLParam(r, "id"))
}

func respondWithAssinatura(w http.ResponseWriter, r *http.Request, s assinaturaReader, userID string) {
	a, err := s.GetSubscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUsuarioNaoEncontrado) {
			respondWithError(w, http.StatusNotFound, err.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Erro ao buscar assinatura")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

// --- FUNÇÕES AUXILIARES ---

func respondWithError(w http.ResponseWriter, code int, message string) {
	if code >= http.StatusInternalServerError {
		slog.Error("API Error", "code", code, "message", message)
	} else {
		slog.Warn("API Error", "code", code, "message", message)
	}
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
