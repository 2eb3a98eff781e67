package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopcart-api/internal/service"
)

// ValidationErrors acumula errores por campo de una cadena de validación.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	return "validation failed"
}

// errorTranslatorMiddleware es el único punto que serializa errores de
// dominio hacia el cliente. Cualquier error no reconocido termina en 500
// sin tumbar el proceso.
func errorTranslatorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var verrs ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "validation failed",
				"errors":  verrs,
			})
		case errors.Is(err, service.ErrInvalidCredentials),
			errors.Is(err, service.ErrRefreshNotFound),
			errors.Is(err, service.ErrWrongPassword),
			errors.Is(err, service.ErrTokenInvalid),
			errors.Is(err, service.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrEmailTaken),
			errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrPasswordMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			if logger != nil {
				logger.Error("request failed",
					zap.Error(err),
					zap.String("path", c.Request.URL.Path),
				)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}
