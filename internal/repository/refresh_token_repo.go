package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopcart-api/internal/domain"
)

// RefreshTokenRepository define el contrato de persistencia para las
// sesiones de refresh token.
type RefreshTokenRepository interface {
	Create(ctx context.Context, record domain.RefreshToken) error
	GetByToken(ctx context.Context, token string) (domain.RefreshToken, error)
	Delete(ctx context.Context, token string) (bool, error)
	Rotate(ctx context.Context, oldToken string, next domain.RefreshToken) error
}

// PgRefreshTokenRepository implementa RefreshTokenRepository usando pgxpool.
type PgRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{pool: pool}
}

func (r *PgRefreshTokenRepository) Create(ctx context.Context, record domain.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (token, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		record.Token,
		record.UserID,
		record.IssuedAt,
		record.ExpiresAt,
	)
	return err
}

func (r *PgRefreshTokenRepository) GetByToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	const query = `
		SELECT token, user_id, issued_at, expires_at
		FROM refresh_tokens
		WHERE token = $1
	`
	var rec domain.RefreshToken
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&rec.Token,
		&rec.UserID,
		&rec.IssuedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return rec, nil
}

func (r *PgRefreshTokenRepository) Delete(ctx context.Context, token string) (bool, error) {
	const query = `DELETE FROM refresh_tokens WHERE token = $1`
	tag, err := r.pool.Exec(ctx, query, token)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Rotate borra el token viejo e inserta el nuevo en una sola transacción.
// Si el viejo ya no existe devuelve pgx.ErrNoRows: de dos rotaciones
// concurrentes con el mismo token solo la primera gana.
func (r *PgRefreshTokenRepository) Rotate(ctx context.Context, oldToken string, next domain.RefreshToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, oldToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	const insert = `
		INSERT INTO refresh_tokens (token, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insert, next.Token, next.UserID, next.IssuedAt, next.ExpiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
