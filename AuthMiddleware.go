package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			return
		}

		// Expect: "Bearer token"
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(Config.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "details": err.Error()})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		rawID, ok := claims["user_id"].(float64)
		if !ok || rawID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		role, _ := claims["role"].(string)
		if role == "" {
			role = RoleStudent
		}

		c.Set("user_id", uint(rawID))
		c.Set("role", role)

		logger := LoggerFrom(c.Request.Context()).With("user_id", uint(rawID), "role", role)
		c.Request = c.Request.WithContext(ContextWithLogger(c.Request.Context(), logger))

		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != RoleAdmin {
			writeError(c, errForbidden("admin role required"))
			return
		}
		c.Next()
	}
}

// getUserIDFromContext expects AuthMiddleware to set "user_id" (uint) in context.
func getUserIDFromContext(c *gin.Context) (uint, bool) {
	uid, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	v, ok := uid.(uint)
	return v, ok
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	uid, ok := getUserIDFromContext(c)
	if !ok {
		return Actor{}, false
	}
	return Actor{UserID: uid, Admin: c.GetString("role") == RoleAdmin}, true
}

// StudentOnly keeps admin tokens away from routes that act as a user.
func StudentOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != RoleStudent {
			writeError(c, errForbidden("only student accounts can do this"))
			return
		}
		c.Next()
	}
}
