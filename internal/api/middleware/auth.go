package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"example.com/distribution/services/stockout/internal/cache"
	"example.com/distribution/services/stockout/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// UserContextKey is the gin context key the authenticated user is stored
// under.
const UserContextKey = "auth_user"

const tokenCacheTTL = 5 * time.Minute

// UserResolver looks a user up from an API token.
type UserResolver interface {
	GetByToken(ctx context.Context, token string) (*models.User, error)
}

// TokenAuth validates the Bearer token from the Authorization header and
// attaches the resolved user to the request context. Token issuance lives
// with the external identity provider; this only checks the mirror table.
func TokenAuth(users UserResolver, redisCache *cache.RedisCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format. Expected: 'Bearer {token}'"})
			c.Abort()
			return
		}
		token := parts[1]

		var user *models.User
		cacheKey := cache.GetUserTokenCacheKey(token)

		var cached models.User
		if err := redisCache.Get(c.Request.Context(), cacheKey, &cached); err == nil {
			user = &cached
		} else {
			resolved, err := users.GetByToken(c.Request.Context(), token)
			if err != nil {
				log.Warn().Err(err).Msg("invalid API token")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API token"})
				c.Abort()
				return
			}
			user = resolved
			if err := redisCache.Set(c.Request.Context(), cacheKey, user, tokenCacheTTL); err != nil {
				log.Debug().Err(err).Msg("failed to cache token lookup")
			}
		}

		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by TokenAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(UserContextKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}
