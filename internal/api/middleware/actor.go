package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tenantops/safety-core/internal/domain/audit"
)

const (
	ActorIDHeader   = "X-Actor-ID"
	ActorTypeHeader = "X-Actor-Type"
	ActorKey        = "actor"
)

// RequireActor rejects requests that do not name who is acting. There is no
// fallback identity.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := audit.Actor{
			Type: audit.ActorType(c.GetHeader(ActorTypeHeader)),
			ID:   c.GetHeader(ActorIDHeader),
		}
		if err := actor.Validate(); err != nil {
			response := gin.H{
				"error": gin.H{
					"code":    "MISSING_ACTOR",
					"message": err.Error(),
				},
			}
			if correlationID := GetCorrelationID(c); correlationID != "" {
				response["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response)
			return
		}
		c.Set(ActorKey, actor)
		c.Next()
	}
}

// GetActor returns the actor set by RequireActor
func GetActor(c *gin.Context) (audit.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return audit.Actor{}, false
	}
	actor, ok := v.(audit.Actor)
	return actor, ok
}
