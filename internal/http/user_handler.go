package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopcart-api/internal/domain"
	"shopcart-api/internal/service"
)

// UserHandler mantiene dependencias para endpoints de usuarios.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
	}
}

// Register maneja POST /users/register.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DateOfBirth string `json:"date_of_birth"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// La cadena de validación ya normalizó la fecha a RFC3339.
	dob, err := time.Parse(time.RFC3339, req.DateOfBirth)
	if err != nil {
		_ = c.Error(ValidationErrors{"date_of_birth": "must be an ISO8601 date"})
		c.Abort()
		return
	}

	user, tokens, err := h.userServ.Register(c.Request.Context(), service.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		DateOfBirth: dob,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// Login maneja POST /users/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, tokens, err := h.userServ.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// Logout maneja POST /users/logout.
func (h *UserHandler) Logout(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		h.fail(c, service.ErrTokenInvalid)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.userServ.Logout(c.Request.Context(), claims.UserID, req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logout success"})
}

// RefreshToken maneja POST /users/refresh-token.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	tokens, err := h.userServ.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// VerifyEmail maneja GET /users/verify-email.
func (h *UserHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("email_verify_token")

	user, alreadyVerified, err := h.userServ.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}

	message := "email verified"
	if alreadyVerified {
		message = "already_verified"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "user": user})
}

// ResendVerifyEmail maneja POST /users/resend-verify-email.
func (h *UserHandler) ResendVerifyEmail(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		h.fail(c, service.ErrTokenInvalid)
		return
	}

	if err := h.userServ.ResendVerifyEmail(c.Request.Context(), claims.UserID); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verify email resent"})
}

// ForgotPassword maneja POST /users/forgot-password.
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.userServ.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "forgot password email sent"})
}

// VerifyForgotPassword maneja POST /users/verify-forgot-password.
func (h *UserHandler) VerifyForgotPassword(c *gin.Context) {
	var req struct {
		ForgotPasswordToken string `json:"forgot_password_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify forgot password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.userServ.VerifyForgotPasswordToken(c.Request.Context(), req.ForgotPasswordToken); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "forgot password token valid"})
}

// ResetPassword maneja POST /users/reset-password.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password            string `json:"password"`
		ForgotPasswordToken string `json:"forgot_password_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.userServ.ResetPassword(c.Request.Context(), req.ForgotPasswordToken, req.Password); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset success"})
}

// ChangePassword maneja PUT /users/change-password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		h.fail(c, service.ErrTokenInvalid)
		return
	}
	var req struct {
		OldPassword string `json:"old_password"`
		Password    string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid change password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.userServ.ChangePassword(c.Request.Context(), claims.UserID, req.OldPassword, req.Password); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// GetMe maneja POST /users/me.
func (h *UserHandler) GetMe(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		h.fail(c, service.ErrTokenInvalid)
		return
	}

	user, err := h.userServ.GetMe(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateMe maneja PATCH /users/me.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		h.fail(c, service.ErrTokenInvalid)
		return
	}
	var req struct {
		Name        *string `json:"name"`
		DateOfBirth *string `json:"date_of_birth"`
		Bio         *string `json:"bio"`
		Location    *string `json:"location"`
		Website     *string `json:"website"`
		Username    *string `json:"username"`
		Avatar      *string `json:"avatar"`
		CoverPhoto  *string `json:"cover_photo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update me request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	update := domain.ProfileUpdate{
		Name:       req.Name,
		Bio:        req.Bio,
		Location:   req.Location,
		Website:    req.Website,
		Username:   req.Username,
		Avatar:     req.Avatar,
		CoverPhoto: req.CoverPhoto,
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse(time.RFC3339, *req.DateOfBirth)
		if err != nil {
			_ = c.Error(ValidationErrors{"date_of_birth": "must be an ISO8601 date"})
			c.Abort()
			return
		}
		update.DateOfBirth = &dob
	}

	user, err := h.userServ.UpdateMe(c.Request.Context(), claims.UserID, update)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GetProfile maneja GET /users/:username, lectura pública.
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userServ.GetProfile(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
