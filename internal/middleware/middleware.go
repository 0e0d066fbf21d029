package middleware

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupCORS configures CORS middleware
func SetupCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000", // Storefront
			"http://localhost:4200", // Admin shell app
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", "accept", "origin", "Cache-Control", "X-Requested-With", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// Logger returns a gin.HandlerFunc for logging requests
func Logger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(string); ok {
			log.Printf("Panic recovered: %s", err)
			c.JSON(500, gin.H{
				"error":   "Internal Server Error",
				"message": "An unexpected error occurred",
			})
		}
		c.AbortWithStatus(500)
	})
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// UserID middleware extracts the acting admin's user ID from headers.
// Admin routes sit behind the gateway, which verifies the token and
// forwards the identity as X-User-ID.
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			// Query parameter fallback for development only
			userID = c.Query("userId")
		}
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

// JWTPayload represents the decoded JWT payload for customer authentication
type JWTPayload struct {
	Sub        string `json:"sub"`
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
}

// CustomerAuthMiddleware validates customer JWT tokens and extracts customer ID.
// This middleware is for storefront routes where customers access their own
// returns. Signature verification happens at the gateway; here only the claims
// are extracted.
func CustomerAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]

		tokenParts := strings.Split(token, ".")
		if len(tokenParts) != 3 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT format"})
			c.Abort()
			return
		}

		// Base64url decode the payload
		payload, err := base64.RawURLEncoding.DecodeString(tokenParts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT payload"})
			c.Abort()
			return
		}

		var jwtPayload JWTPayload
		if err := json.Unmarshal(payload, &jwtPayload); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT payload structure"})
			c.Abort()
			return
		}

		// Extract customer ID from token (try both sub and customer_id fields)
		customerID := jwtPayload.CustomerID
		if customerID == "" {
			customerID = jwtPayload.Sub
		}

		if customerID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Customer ID not found in token"})
			c.Abort()
			return
		}

		c.Set("customer_id", customerID)
		c.Set("customer_email", jwtPayload.Email)

		c.Next()
	}
}
