package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopcart-api/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
// Cada ruta declara su pipeline en orden: filtro de body si aplica,
// cadena de validación, autorización y al final un único handler.
func NewRouter(
	logger *zap.Logger,
	tokens *service.TokenService,
	userH *UserHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y traducción central de errores.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), errorTranslatorMiddleware(logger))

	authRequired := AccessTokenMiddleware(tokens)

	users := r.Group("/users")
	users.POST("/register", registerValidator(), userH.Register)
	users.POST("/login", loginValidator(), userH.Login)
	users.POST("/logout", authRequired, refreshTokenValidator(), userH.Logout)
	users.GET("/verify-email", verifyEmailValidator(), userH.VerifyEmail)
	users.POST("/resend-verify-email", authRequired, userH.ResendVerifyEmail)
	users.POST("/forgot-password", forgotPasswordValidator(), userH.ForgotPassword)
	users.POST("/verify-forgot-password", forgotPasswordTokenValidator(), userH.VerifyForgotPassword)
	users.POST("/reset-password", forgotPasswordTokenValidator(), resetPasswordValidator(), userH.ResetPassword)
	users.POST("/me", authRequired, userH.GetMe)
	users.PATCH("/me",
		filterBody("name", "date_of_birth", "bio", "location", "website", "username", "avatar", "cover_photo"),
		authRequired,
		updateMeValidator(),
		userH.UpdateMe,
	)
	users.GET("/:username", userH.GetProfile)
	users.PUT("/change-password", authRequired, changePasswordValidator(), userH.ChangePassword)
	users.POST("/refresh-token", refreshTokenValidator(), userH.RefreshToken)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
