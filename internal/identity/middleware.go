package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxActorClaims = "cropledger_actor_claims"

// RequireActor returns a Gin middleware that enforces a valid actor Bearer
// token and stores its claims in the context. A nil tokens disables the
// check: requests pass through and ActorFromContext reports no actor.
func RequireActor(tokens *ActorTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "Bearer actor token required")
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			abortUnauthorized(c, "invalid actor token: "+err.Error())
			return
		}
		c.Set(ctxActorClaims, claims)
		c.Next()
	}
}

// ActorFromContext returns the claims stored by RequireActor, if any.
func ActorFromContext(c *gin.Context) (*ActorClaims, bool) {
	v, ok := c.Get(ctxActorClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*ActorClaims)
	return claims, ok
}

// ActingAs reports whether the request may act as id. Without a verified
// token every id is accepted; with one, id must match the subject unless
// the token is an admin token and allowAdmin is set.
func ActingAs(c *gin.Context, id string, allowAdmin bool) bool {
	claims, ok := ActorFromContext(c)
	if !ok {
		return true
	}
	return claims.Actor() == id || (allowAdmin && claims.IsAdmin())
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": msg,
		"error":   gin.H{"kind": "unauthenticated", "message": msg},
	})
}
