package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// PaymentMethodRepository persists payment method metadata.
type PaymentMethodRepository interface {
	Create(ctx context.Context, pm *domain.PaymentMethod) error
	ListByUser(ctx context.Context, userID string) ([]domain.PaymentMethod, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	SetDefault(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}

type paymentMethodRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentMethodRepository returns a Postgres-backed implementation.
func NewPaymentMethodRepository(pool *pgxpool.Pool) PaymentMethodRepository {
	return &paymentMethodRepository{pool: pool}
}

// Create inserts the method. The first method of a user becomes the default.
func (r *paymentMethodRepository) Create(ctx context.Context, pm *domain.PaymentMethod) error {
	const query = `
        INSERT INTO payment_methods (user_id, provider, provider_ref, brand, last4, exp_month, exp_year, is_default)
        VALUES ($1, $2, $3, $4, $5, $6, $7,
            NOT EXISTS (SELECT 1 FROM payment_methods WHERE user_id = $1))
        RETURNING id, is_default, created_at`

	err := r.pool.QueryRow(ctx, query,
		pm.UserID,
		pm.Provider,
		pm.ProviderRef,
		pm.Brand,
		pm.Last4,
		pm.ExpMonth,
		pm.ExpYear,
	).Scan(&pm.ID, &pm.IsDefault, &pm.CreatedAt)
	return translatePgError(err)
}

func (r *paymentMethodRepository) ListByUser(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	const query = `
        SELECT id, user_id, provider, provider_ref, brand, last4, exp_month, exp_year, is_default, created_at
        FROM payment_methods WHERE user_id=$1
        ORDER BY is_default DESC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := []domain.PaymentMethod{}
	for rows.Next() {
		var pm domain.PaymentMethod
		if err := rows.Scan(
			&pm.ID,
			&pm.UserID,
			&pm.Provider,
			&pm.ProviderRef,
			&pm.Brand,
			&pm.Last4,
			&pm.ExpMonth,
			&pm.ExpYear,
			&pm.IsDefault,
			&pm.CreatedAt,
		); err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

func (r *paymentMethodRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_methods WHERE user_id=$1`, userID).Scan(&count)
	return count, err
}

func (r *paymentMethodRepository) SetDefault(ctx context.Context, userID, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE payment_methods SET is_default=FALSE WHERE user_id=$1 AND id<>$2`, userID, id); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `UPDATE payment_methods SET is_default=TRUE WHERE user_id=$1 AND id=$2`, userID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *paymentMethodRepository) Delete(ctx context.Context, userID, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM payment_methods WHERE user_id=$1 AND id=$2`, userID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
