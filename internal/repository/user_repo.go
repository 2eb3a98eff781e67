package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shopcart-api/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SetEmailVerifyToken(ctx context.Context, id, token string) error
	Verify(ctx context.Context, id string, verifiedAt time.Time) error
	SetForgotPasswordToken(ctx context.Context, id, token string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) error
}

const userColumns = `id, name, email, username, date_of_birth, password_hash,
	email_verify_token, forgot_password_token, verified_at,
	bio, location, website, avatar, cover_photo, created_at, updated_at`

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, name, email, username, date_of_birth, password_hash,
			email_verify_token, forgot_password_token, verified_at,
			bio, location, website, avatar, cover_photo, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Username,
		user.DateOfBirth,
		user.PasswordHash,
		user.EmailVerifyToken,
		user.ForgotPasswordToken,
		user.VerifiedAt,
		user.Bio,
		user.Location,
		user.Website,
		user.Avatar,
		user.CoverPhoto,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, "email = $1", email)
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getBy(ctx, "username = $1", username)
}

func (r *PgUserRepository) getBy(ctx context.Context, where string, arg any) (domain.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s", userColumns, where)
	var (
		u        domain.User
		username *string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&username,
		&u.DateOfBirth,
		&u.PasswordHash,
		&u.EmailVerifyToken,
		&u.ForgotPasswordToken,
		&u.VerifiedAt,
		&u.Bio,
		&u.Location,
		&u.Website,
		&u.Avatar,
		&u.CoverPhoto,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if username != nil {
		u.Username = *username
	}
	return u, nil
}

func (r *PgUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	return exists, err
}

func (r *PgUserRepository) SetEmailVerifyToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET email_verify_token = $2, updated_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, token, time.Now().UTC())
	return err
}

func (r *PgUserRepository) Verify(ctx context.Context, id string, verifiedAt time.Time) error {
	const query = `
		UPDATE users
		SET verified_at = $2, email_verify_token = '', updated_at = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, verifiedAt, time.Now().UTC())
	return err
}

func (r *PgUserRepository) SetForgotPasswordToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET forgot_password_token = $2, updated_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, token, time.Now().UTC())
	return err
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $2, forgot_password_token = '', updated_at = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, passwordHash, time.Now().UTC())
	return err
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) error {
	sets := make([]string, 0, 9)
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.DateOfBirth != nil {
		add("date_of_birth", *update.DateOfBirth)
	}
	if update.Bio != nil {
		add("bio", *update.Bio)
	}
	if update.Location != nil {
		add("location", *update.Location)
	}
	if update.Website != nil {
		add("website", *update.Website)
	}
	if update.Username != nil {
		add("username", *update.Username)
	}
	if update.Avatar != nil {
		add("avatar", *update.Avatar)
	}
	if update.CoverPhoto != nil {
		add("cover_photo", *update.CoverPhoto)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1", strings.Join(sets, ", "))
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}
