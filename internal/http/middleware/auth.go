// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. The verified subject is
// stored under the "userID" gin key, which the rate limiter, the idempotency
// validator and every handler read.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CtxUserID is the gin context key holding the authenticated user id.
const CtxUserID = "userID"

// TokenVerifier returns the subject of a valid token.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Auth rejects requests without a valid bearer token with 401.
//
// The token is read from "Authorization: Bearer <token>" or, for browser
// websocket upgrades that cannot set headers, from the "token" query param.
func Auth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c.Request)
		if tok == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		sub, err := v.Verify(tok)
		if err != nil || sub == "" {
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		c.Set(CtxUserID, sub)
		c.Next()
	}
}

// BearerToken extracts the raw token from the request or returns "".
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// UserID returns the authenticated user id or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(CtxUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="chat"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": requestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
