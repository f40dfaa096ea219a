package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/willjrcristo/chat-billing/internal/domain"
)

// ErrIdentidadeDuplicada indica violação dos índices únicos de customer/subscription do Stripe.
var ErrIdentidadeDuplicada = errors.New("identidade do stripe já pertence a outro usuário")

// UsuarioRepository define a interface para as operações de persistência de usuários.
// Também é o diretório de clientes: resolve usuário local <-> cliente/assinatura do Stripe.
type UsuarioRepository interface {
	Create(ctx context.Context, usuario domain.Usuario) (string, error)
	GetAll(ctx context.Context) ([]domain.Usuario, error)
	GetByID(ctx context.Context, id string) (*domain.Usuario, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Usuario, error)
	GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Usuario, error)
	Update(ctx context.Context, id string, usuario domain.Usuario) error
	Delete(ctx context.Context, id string) error

	// UpdateSubscription lê, mescla e grava a assinatura do usuário numa única transação.
	// Retorna o registro resultante e se houve escrita. Usuário inexistente retorna nil, false, nil.
	UpdateSubscription(ctx context.Context, userID string, patch domain.SubscriptionPatch) (*domain.Usuario, bool, error)
}

type sqliteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository cria o repositório sobre uma conexão já migrada.
func NewSQLiteRepository(db *sql.DB) UsuarioRepository {
	return &sqliteRepository{
		db:  db,
		now: time.Now,
	}
}

const selectUsuario = `SELECT id, nome, email, created_at,
	stripe_customer_id, stripe_subscription_id,
	subscription_tier, subscription_status, subscription_current_period_end,
	tier_updated_at, status_updated_at, period_updated_at
	FROM usuarios`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUsuario(row rowScanner) (*domain.Usuario, error) {
	var (
		u                          domain.Usuario
		customerID, subscriptionID sql.NullString
		tier, status               string
		createdAt, periodEnd       int64
		tierAt, statusAt, periodAt int64
	)
	if err := row.Scan(&u.ID, &u.Nome, &u.Email, &createdAt,
		&customerID, &subscriptionID,
		&tier, &status, &periodEnd,
		&tierAt, &statusAt, &periodAt); err != nil {
		return nil, err
	}

	u.CreatedAt = fromUnix(createdAt)
	u.StripeCustomerID = customerID.String
	u.StripeSubscriptionID = subscriptionID.String
	u.SubscriptionTier = domain.SubscriptionTier(tier)
	u.SubscriptionStatus = domain.SubscriptionStatus(status)
	u.SubscriptionCurrentPeriodEnd = fromUnix(periodEnd)
	u.TierUpdatedAt = fromUnix(tierAt)
	u.StatusUpdatedAt = fromUnix(statusAt)
	u.PeriodUpdatedAt = fromUnix(periodAt)
	return &u, nil
}

func (r *sqliteRepository) Create(ctx context.Context, usuario domain.Usuario) (string, error) {
	id := usuario.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO usuarios(id, nome, email, created_at) VALUES(?, ?, ?, ?)",
		id, usuario.Nome, usuario.Email, r.now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *sqliteRepository) GetAll(ctx context.Context) ([]domain.Usuario, error) {
	rows, err := r.db.QueryContext(ctx, selectUsuario+" ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usuarios []domain.Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		usuarios = append(usuarios, *u)
	}
	return usuarios, rows.Err()
}

func (r *sqliteRepository) GetByID(ctx context.Context, id string) (*domain.Usuario, error) {
	return r.getOne(ctx, r.db, "id", id)
}

func (r *sqliteRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Usuario, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.getOne(ctx, r.db, "stripe_customer_id", customerID)
}

func (r *sqliteRepository) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*domain.Usuario, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.getOne(ctx, r.db, "stripe_subscription_id", subscriptionID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getOne aceita apenas nomes de coluna fixos deste arquivo, nunca entrada do usuário.
func (r *sqliteRepository) getOne(ctx context.Context, q queryer, column, value string) (*domain.Usuario, error) {
	row := q.QueryRowContext(ctx, selectUsuario+" WHERE "+column+" = ?", value)

	u, err := scanUsuario(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *sqliteRepository) Update(ctx context.Context, id string, usuario domain.Usuario) error {
	_, err := r.db.ExecContext(ctx, "UPDATE usuarios SET nome = ?, email = ? WHERE id = ?",
		usuario.Nome, usuario.Email, id)
	return err
}

func (r *sqliteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM usuarios WHERE id = ?", id)
	return err
}

func (r *sqliteRepository) UpdateSubscription(ctx context.Context, userID string, patch domain.SubscriptionPatch) (*domain.Usuario, bool, error) {
	// A coluna guarda segundos; truncar aqui mantém o replay de um evento idêntico sem escrita.
	patch.EventAt = patch.EventAt.Truncate(time.Second)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("falha ao iniciar transação: %w", err)
	}
	defer tx.Rollback()

	current, err := r.getOne(ctx, tx, "id", userID)
	if err != nil {
		return nil, false, fmt.Errorf("falha ao ler usuário: %w", err)
	}
	if current == nil {
		return nil, false, nil
	}

	merged, changed := current.ApplySubscription(patch)
	if !changed {
		return current, false, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE usuarios SET
		stripe_customer_id = ?, stripe_subscription_id = ?,
		subscription_tier = ?, subscription_status = ?, subscription_current_period_end = ?,
		tier_updated_at = ?, status_updated_at = ?, period_updated_at = ?
		WHERE id = ?`,
		nullString(merged.StripeCustomerID), nullString(merged.StripeSubscriptionID),
		string(merged.SubscriptionTier), string(merged.SubscriptionStatus), toUnix(merged.SubscriptionCurrentPeriodEnd),
		toUnix(merged.TierUpdatedAt), toUnix(merged.StatusUpdatedAt), toUnix(merged.PeriodUpdatedAt),
		userID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, false, fmt.Errorf("%w: %v", ErrIdentidadeDuplicada, err)
		}
		return nil, false, fmt.Errorf("falha ao gravar assinatura: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("falha ao confirmar transação: %w", err)
	}
	return &merged, true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
