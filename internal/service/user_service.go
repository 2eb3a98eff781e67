package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shopcart-api/internal/domain"
	"shopcart-api/internal/email"
	"shopcart-api/internal/repository"
)

// UserService coordina reglas de negocio para el ciclo de vida de
// cuentas: registro, sesiones, verificación y manejo de passwords.
type UserService struct {
	logger        *zap.Logger
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	tokens        *TokenService
	emailSender   email.Sender
	limiter       RateLimiter
	baseURL       string
}

func NewUserService(
	logger *zap.Logger,
	users repository.UserRepository,
	refreshTokens repository.RefreshTokenRepository,
	tokens *TokenService,
	emailSender email.Sender,
	limiter RateLimiter,
	baseURL string,
) *UserService {
	if limiter == nil {
		limiter = NewMemoryRateLimiter(10*time.Minute, 3)
	}
	return &UserService{
		logger:        logger,
		users:         users,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		emailSender:   emailSender,
		limiter:       limiter,
		baseURL:       strings.TrimRight(baseURL, "/"),
	}
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshNotFound    = errors.New("refresh token not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrWrongPassword      = errors.New("old password does not match")
	ErrPasswordMismatch   = errors.New("password confirmation mismatch")
	ErrUserNotVerified    = errors.New("user not verified")
	ErrRateLimited        = errors.New("rate limited")
)

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	DateOfBirth time.Time
}

// Register crea un usuario sin verificar, guarda el token de verificación
// en el registro, despacha el correo y abre una sesión nueva.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, TokenPair, error) {
	emailAddr := normalizeEmail(input.Email)

	exists, err := s.users.EmailExists(ctx, emailAddr)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	if exists {
		return domain.User{}, TokenPair{}, ErrEmailTaken
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}

	now := time.Now().UTC()
	dob := input.DateOfBirth
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(input.Name),
		Email:        emailAddr,
		DateOfBirth:  &dob,
		PasswordHash: string(hashBytes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	verifyToken, err := s.tokens.Issue(user, TokenEmailVerify)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	user.EmailVerifyToken = verifyToken

	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, TokenPair{}, err
	}

	s.dispatchVerifyEmail(ctx, user, verifyToken)

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Login autentica email+password y abre una sesión nueva.
func (s *UserService) Login(ctx context.Context, emailAddr, password string) (domain.User, TokenPair, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return domain.User{}, TokenPair{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return domain.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Logout borra la fila del refresh token. Si ya no existe (logout previo
// o token ajeno) falla con ErrRefreshNotFound.
func (s *UserService) Logout(ctx context.Context, userID, refreshToken string) error {
	claims, err := s.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return ErrRefreshNotFound
	}
	deleted, err := s.refreshTokens.Delete(ctx, refreshToken)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrRefreshNotFound
	}
	return nil
}

// Refresh rota la sesión: borra la fila vieja e inserta la nueva de forma
// atómica, así un refresh token robado sirve a lo sumo una vez.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenPair{}, ErrRefreshNotFound
		}
		return TokenPair{}, err
	}

	pair, record, err := s.generatePair(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.refreshTokens.Rotate(ctx, refreshToken, record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenPair{}, ErrRefreshNotFound
		}
		return TokenPair{}, err
	}
	return pair, nil
}

// VerifyEmail consume el token de verificación. Tras la primera
// verificación el endpoint es idempotente: un segundo clic devuelve el
// usuario ya verificado sin re-chequear el token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (domain.User, bool, error) {
	claims, err := s.tokens.Parse(token, TokenEmailVerify)
	if err != nil {
		return domain.User{}, false, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, false, ErrTokenInvalid
		}
		return domain.User{}, false, err
	}

	if user.Verified() {
		return user, true, nil
	}
	if user.EmailVerifyToken != token {
		return domain.User{}, false, ErrTokenInvalid
	}

	verifiedAt := time.Now().UTC()
	if err := s.users.Verify(ctx, user.ID, verifiedAt); err != nil {
		return domain.User{}, false, err
	}
	user.VerifiedAt = &verifiedAt
	user.EmailVerifyToken = ""
	return user, false, nil
}

// ResendVerifyEmail re-emite el token de verificación; el token anterior
// queda implícitamente invalidado al sobrescribirse en el registro.
func (s *UserService) ResendVerifyEmail(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if user.Verified() {
		return ErrAlreadyVerified
	}
	if s.limiter != nil && !s.limiter.Allow("verify:"+user.Email) {
		return ErrRateLimited
	}

	verifyToken, err := s.tokens.Issue(user, TokenEmailVerify)
	if err != nil {
		return err
	}
	if err := s.users.SetEmailVerifyToken(ctx, user.ID, verifyToken); err != nil {
		return err
	}

	s.dispatchVerifyEmail(ctx, user, verifyToken)
	return nil
}

// ForgotPassword emite un token de reset y lo despacha por correo.
func (s *UserService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if s.limiter != nil && !s.limiter.Allow("forgot:"+user.Email) {
		return ErrRateLimited
	}

	resetToken, err := s.tokens.Issue(user, TokenForgotPassword)
	if err != nil {
		return err
	}
	if err := s.users.SetForgotPasswordToken(ctx, user.ID, resetToken); err != nil {
		return err
	}

	s.dispatchPasswordReset(ctx, user, resetToken)
	return nil
}

// VerifyForgotPasswordToken chequea el token de reset sin mutar nada.
func (s *UserService) VerifyForgotPasswordToken(ctx context.Context, token string) error {
	_, err := s.checkForgotPasswordToken(ctx, token)
	return err
}

// ResetPassword consume el token de reset y sobrescribe el hash. El
// token queda invalidado junto con la actualización.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	user, err := s.checkForgotPasswordToken(ctx, token)
	if err != nil {
		return err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, string(hashBytes))
}

// ChangePassword exige el password actual antes de sobrescribir el hash.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, string(hashBytes))
}

// GetMe devuelve el usuario autenticado releyendo el estado actual.
func (s *UserService) GetMe(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// UpdateMe aplica los campos de perfil permitidos. Solo usuarios
// verificados pueden mutar su perfil.
func (s *UserService) UpdateMe(ctx context.Context, userID string, update domain.ProfileUpdate) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if !user.Verified() {
		return domain.User{}, ErrUserNotVerified
	}

	if err := s.users.UpdateProfile(ctx, userID, update); err != nil {
		return domain.User{}, err
	}
	return s.users.GetByID(ctx, userID)
}

// GetProfile es lectura pública por username.
func (s *UserService) GetProfile(ctx context.Context, username string) (domain.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) openSession(ctx context.Context, user domain.User) (TokenPair, error) {
	pair, record, err := s.generatePair(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.refreshTokens.Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *UserService) generatePair(user domain.User) (TokenPair, domain.RefreshToken, error) {
	access, err := s.tokens.Issue(user, TokenAccess)
	if err != nil {
		return TokenPair{}, domain.RefreshToken{}, err
	}
	refresh, err := s.tokens.Issue(user, TokenRefresh)
	if err != nil {
		return TokenPair{}, domain.RefreshToken{}, err
	}
	now := time.Now().UTC()
	record := domain.RefreshToken{
		Token:     refresh,
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
	}
	pair := TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}
	return pair, record, nil
}

func (s *UserService) checkForgotPasswordToken(ctx context.Context, token string) (domain.User, error) {
	claims, err := s.tokens.Parse(token, TokenForgotPassword)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrTokenInvalid
		}
		return domain.User{}, err
	}
	if user.ForgotPasswordToken == "" || user.ForgotPasswordToken != token {
		return domain.User{}, ErrTokenInvalid
	}
	return user, nil
}

// El despacho de correo no bloquea la operación: si falla solo se loguea.
func (s *UserService) dispatchVerifyEmail(ctx context.Context, user domain.User, token string) {
	if s.emailSender == nil {
		return
	}
	link := fmt.Sprintf("%s/users/verify-email?email_verify_token=%s", s.baseURL, url.QueryEscape(token))
	expiresAt := time.Now().UTC().Add(s.tokens.VerifyTTL())
	if err := s.emailSender.SendVerifyEmail(ctx, user.Email, link, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verify email failed", zap.Error(err), zap.String("email", user.Email))
		}
	}
}

func (s *UserService) dispatchPasswordReset(ctx context.Context, user domain.User, token string) {
	if s.emailSender == nil {
		return
	}
	link := fmt.Sprintf("%s/users/reset-password?forgot_password_token=%s", s.baseURL, url.QueryEscape(token))
	expiresAt := time.Now().UTC().Add(s.tokens.VerifyTTL())
	if err := s.emailSender.SendPasswordReset(ctx, user.Email, link, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", user.Email))
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
