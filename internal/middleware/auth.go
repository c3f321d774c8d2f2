package middleware

import (
	"net/http"
	"strings"

	"bookcircle/internal/apperr"
	"bookcircle/internal/auth"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	CheckUserKey    = "user"
	SessionTokenKey = "token"
)

// SessionAuth resolves the caller from the session cookie, falling back to
// an Authorization: Bearer header, and rejects the request otherwise. A stale
// cookie does not hide a valid bearer token.
func SessionAuth(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var err error = auth.ErrSessionInvalid
		for _, token := range RequestTokens(c) {
			var id auth.Identity
			id, err = authenticator.ValidateSession(c.Request.Context(), token)
			if err == nil {
				c.Set(CheckUserKey, id)
				c.Next()
				return
			}
		}
		abortWith(c, err)
	}
}

// AdminRequired must run after SessionAuth.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			abortWith(c, auth.ErrSessionInvalid)
			return
		}
		if err := auth.RequireAdmin(id); err != nil {
			abortWith(c, err)
			return
		}
		c.Next()
	}
}

// RequestTokens returns the session tokens carried by the request, cookie
// first.
func RequestTokens(c *gin.Context) []string {
	var tokens []string
	session := sessions.Default(c)
	if token, ok := session.Get(SessionTokenKey).(string); ok && token != "" {
		tokens = append(tokens, token)
	}
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// CurrentIdentity returns the identity SessionAuth attached to c.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(CheckUserKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func abortWith(c *gin.Context, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	if status == http.StatusInternalServerError {
		c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": apperr.PublicMessage(err)})
}
