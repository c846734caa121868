package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// IdentifierKey is where the derived caller identifier is stored on the
// request context.
const IdentifierKey = "rate_limit_identifier"

// Identifier derives the key the limiter tracks state per: the authenticated
// principal (bearer token subject) when one is presented, else the API key
// value, else the client network address. This is derivation only - requests
// without credentials still pass through and are limited by origin address.
func Identifier(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.ClientIP()

		if apiKey := strings.TrimSpace(c.GetHeader("X-API-Key")); apiKey != "" {
			identifier = apiKey
		}

		if subject := bearerSubject(c.GetHeader("Authorization"), jwtSecret); subject != "" {
			identifier = subject
		}

		c.Set(IdentifierKey, identifier)
		c.Next()
	}
}

// Extracts the subject claim from a Bearer token; empty on any failure
func bearerSubject(authHeader, secret string) string {
	if authHeader == "" || secret == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ""
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}
