package middleware

import "github.com/gin-gonic/gin"

// ActorHeader carries the acting user's ID on inbound requests. Identity is
// established by the gateway in front of this service.
const ActorHeader = "X-Actor-ID"

// ActorMiddleware copies the actor header into the request context so
// services and handlers can resolve the acting user uniformly.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(ActorHeader); actor != "" {
			c.Request = c.Request.WithContext(WithActorID(c.Request.Context(), actor))
		}
		c.Next()
	}
}
