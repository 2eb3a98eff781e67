package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"shopcart-api/internal/service"
)

const authClaimsKey = "auth_claims"

// AccessTokenMiddleware valida el access token Bearer y guarda los
// claims en el contexto. Todo fallo corta el pipeline con 401.
func AccessTokenMiddleware(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			_ = c.Error(service.ErrTokenInvalid)
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := tokens.Parse(token, service.TokenAccess)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene los claims del access token desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
