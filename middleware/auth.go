package middleware

import (
	"net/http"
	"strings"

	"github.com/dudin-george/cu-x5-bootcamp/services"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid recruiter JWT, taken from the
// Authorization header or, for websocket upgrades, the token query parameter.
// It stores the recruiter id under "recruiter_id".
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required", "code": services.KindUnauthorized})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": services.KindUnauthorized})
			return
		}

		c.Set("recruiter_id", claims.RecruiterID)
		c.Set("recruiter_email", claims.Email)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
