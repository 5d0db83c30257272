package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mcofie/gatepass-settlement/pkg/response"
)

const (
	// ContextKeyUserID is the context key for the authenticated user ID
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the context key for the authenticated user's email
	ContextKeyEmail = "email"
	// ContextKeyRole is the context key for the authenticated user's role
	ContextKeyRole = "role"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the subset of access token claims the service relies on
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// ParseToken validates an HS256 access token and extracts its claims
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		// fall back to the standard subject claim
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return &Claims{UserID: userID, Email: email, Role: role}, nil
}

// JWTAuth requires a valid bearer token and stores its claims in the context
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", ErrMissingToken.Error()))
			return
		}

		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", err.Error()))
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID from context
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetUserRole returns the role claim from context
func GetUserRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}
