package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ActorHeader carries the authenticated user id set by the upstream
// authentication layer.
const ActorHeader = "X-User-ID"

const actorKey = "actor_id"

// ActorMiddleware resolves the acting user from ActorHeader and rejects
// requests without a usable id.
func ActorMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + ActorHeader + " header"})
			return
		}

		actorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || actorID <= 0 {
			logger.Debug("Invalid actor header", zap.String("value", raw))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid " + ActorHeader + " header"})
			return
		}

		c.Set(actorKey, actorID)
		c.Next()
	}
}

// GetActorID returns the user id stored by ActorMiddleware.
func GetActorID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
