package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/eventpass/eventpass/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key for the authenticated user id
	ContextKeyUserID = "user_id"
	// ContextKeyRole is the gin context key for the authenticated role
	ContextKeyRole = "role"
)

// Roles understood by the API
const (
	RoleUser        = "user"
	RoleAdmin       = "admin"
	RoleCoordinator = "coordinator"
)

// Claims is the JWT payload issued by the auth service
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	Secret string
	Issuer string
}

// AuthMiddleware verifies the bearer token and stores the principal in the context
func AuthMiddleware(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}

		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		}, parserOpts...)

		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}
		if claims.UserID == "" {
			abortUnauthorized(c, "token missing subject")
			return
		}

		role := claims.Role
		if role == "" {
			role = RoleUser
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, role)
		c.Next()
	}
}

// RequireRoles aborts with 403 unless the authenticated role is one of the given roles
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok {
			abortUnauthorized(c, "missing credentials")
			return
		}
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Response{
				Success: false,
				Error: &response.ErrorData{
					Code:    "FORBIDDEN",
					Message: "insufficient permissions",
				},
			})
			return
		}
		c.Next()
	}
}

// GetUserID extracts the authenticated user id from the gin context
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetUserRole extracts the authenticated role from the gin context
func GetUserRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyRole)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok && role != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
		Success: false,
		Error: &response.ErrorData{
			Code:    "UNAUTHORIZED",
			Message: msg,
		},
	})
}
