package access

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sendaka/sendaka/internal/metrics"
)

// ContextKeyCaller is the gin context key under which the auth boundary
// installs the resolved Caller.
const ContextKeyCaller = "accessCaller"

// WithCaller installs the resolved caller identity in the gin context.
// Only the auth middleware should call this.
func WithCaller(c *gin.Context, caller Caller) {
	c.Set(ContextKeyCaller, caller)
}

// CallerFrom returns the caller identity resolved by the auth boundary.
// This is the single resolution function every call site must use.
func CallerFrom(c *gin.Context) (Caller, bool) {
	v, exists := c.Get(ContextKeyCaller)
	if !exists {
		return Caller{}, false
	}
	caller, ok := v.(Caller)
	return caller, ok
}

// Require returns middleware that rejects callers not permitted by the named
// group. The group name is checked at registration time so a typo panics on
// startup rather than silently failing per request.
func Require(group Group) gin.HandlerFunc {
	if !KnownGroup(group) {
		panic(fmt.Sprintf("access: route registered with unknown permission group %q", group))
	}
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			metrics.AccessChecksTotal.WithLabelValues(string(group), "unauthenticated").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer sk_...' header.",
			})
			return
		}
		if !IsPermitted(caller.Role, group) {
			metrics.AccessChecksTotal.WithLabelValues(string(group), "denied").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("role %q is not permitted to perform this operation", caller.Role),
			})
			return
		}
		metrics.AccessChecksTotal.WithLabelValues(string(group), "allowed").Inc()
		c.Next()
	}
}
