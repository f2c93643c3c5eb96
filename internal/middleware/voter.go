package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/livepoll/backend/internal/auth"
	"github.com/livepoll/backend/pkg/response"
)

const (
	// ContextVoterID is the key for the voter identity in gin context.
	ContextVoterID = "voter_id"
	// VoterCookie holds the signed voter token in browsers.
	VoterCookie = "voter_token"
	// VoterTokenHeader returns a freshly issued token to non-browser clients.
	VoterTokenHeader = "X-Voter-Token"
)

// Voter resolves the anonymous voter identity for each request. A valid token from the
// Authorization header or the voter cookie is reused; otherwise a new identity is issued.
func Voter(tokens *auth.VoterTokens, secureCookie bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if voterID, err := tokens.Validate(token); err == nil {
				c.Set(ContextVoterID, voterID)
				c.Next()
				return
			}
		}

		voterID, token, err := tokens.Issue()
		if err != nil {
			logger.Error("issue voter token", zap.Error(err))
			response.Internal(c, "failed to issue voter identity")
			c.Abort()
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(VoterCookie, token, int(tokens.TTL().Seconds()), "/", "", secureCookie, true)
		c.Header(VoterTokenHeader, token)
		c.Set(ContextVoterID, voterID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie(VoterCookie); err == nil {
		return cookie
	}
	return ""
}

// VoterID returns the identity set by Voter.
func VoterID(c *gin.Context) string {
	return c.GetString(ContextVoterID)
}
