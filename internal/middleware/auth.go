package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"commerce/internal/pkg/jwt"
	"commerce/internal/pkg/response"
	"commerce/internal/tenant"
)

const (
	ChannelHeader = "X-Channel-ID"
	claimsKey     = "claims"
)

// JWTAuth validates the bearer token and stores user_id, role and the
// claims on the context. Websocket upgrades may pass the token as ?token=
// because browsers cannot set headers on them.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token is required")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ChannelScope resolves the channel named by the X-Channel-ID header (or
// ?channel_id= on websocket upgrades), checks the token grants it and puts
// a tenant.Scope on the request context. Must run after JWTAuth.
func ChannelScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(claimsKey)
		claims, _ := v.(*jwt.Claims)
		if !ok || claims == nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		raw := c.GetHeader(ChannelHeader)
		if raw == "" && isWebsocketUpgrade(c) {
			raw = c.Query("channel_id")
		}
		channelID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || channelID <= 0 {
			response.Abort(c, http.StatusBadRequest, "INVALID_CHANNEL", "A numeric X-Channel-ID header is required")
			return
		}
		if !claims.AllowsChannel(channelID) {
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", "Access to this channel is not granted")
			return
		}

		c.Set("channel_id", channelID)
		scope := tenant.Scope{ChannelID: channelID, ActorID: claims.UserID}
		c.Request = c.Request.WithContext(tenant.WithScope(c.Request.Context(), scope))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if isWebsocketUpgrade(c) {
		return c.Query("token")
	}
	return ""
}

func isWebsocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
