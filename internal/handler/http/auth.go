package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
)

// KeyUserID é a chave do id do usuário na sessão, escrita pelo login do app de chat.
const KeyUserID = "user_id"

type ctxKey int

const userIDKey ctxKey = iota

// NewCookieStore cria o store de sessões compartilhado com o app de chat.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SessionAuth resolve o usuário autenticado a partir do cookie de sessão.
type SessionAuth struct {
	store sessions.Store
	name  string
}

func NewSessionAuth(store sessions.Store, name string) *SessionAuth {
	return &SessionAuth{store: store, name: name}
}

// RequireUser responde 401 quando não há usuário na sessão.
func (a *SessionAuth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.store.Get(r, a.name)
		if err != nil {
			slog.WarnContext(r.Context(), "Cookie de sessão inválido", "error", err)
			respondWithError(w, http.StatusUnauthorized, "Não autorizado")
			return
		}

		userID, _ := sess.Values[KeyUserID].(string)
		if userID == "" {
			respondWithError(w, http.StatusUnauthorized, "Não autorizado")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext devolve o usuário colocado no contexto por RequireUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
