package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/service"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	MachineKeyHeader        = "X-Machine-Key"
	UserIDKey               = "userID"
	UserRoleKey             = "userRole"
	UsernameKey             = "username"
	AccessTokenKey          = "accessToken"
)

type AuthMiddleware struct {
	authService   *service.AuthService
	machineAPIKey string
}

func NewAuthMiddleware(authService *service.AuthService, machineAPIKey string) *AuthMiddleware {
	return &AuthMiddleware{authService: authService, machineAPIKey: machineAPIKey}
}

// Authenticate validates the bearer JWT and stores the caller in the gin context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeaderKey)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		accessToken := fields[1]
		_, claims, err := m.authService.ValidateToken(accessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "details": err.Error()})
			return
		}

		userIDStr, okUserID := claims["sub"].(string)
		userRole, okUserRole := claims["role"].(string)
		username, okUsername := claims["username"].(string)
		userID, convErr := strconv.Atoi(userIDStr)

		if !okUserID || !okUserRole || !okUsername || convErr != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token carries no valid user"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(UserRoleKey, userRole)
		c.Set(UsernameKey, username)
		c.Set(AccessTokenKey, accessToken)

		c.Next()
	}
}

// AuthorizeRole must run after Authenticate.
func (m *AuthMiddleware) AuthorizeRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoleVal, exists := c.Get(UserRoleKey)
		if !exists {
			log.Printf("AuthorizeRole: no role in context (Authenticate() must run first)")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied (no role)"})
			return
		}

		userRole, ok := userRoleVal.(string)
		if !ok {
			log.Printf("AuthorizeRole: role in context has unexpected type")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied (invalid role)"})
			return
		}

		authorized := false
		for _, reqRole := range requiredRoles {
			if userRole == reqRole {
				authorized = true
				break
			}
		}

		if !authorized {
			log.Printf("AuthorizeRole: role '%s' denied (requires %v)", userRole, requiredRoles)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied (role not allowed)"})
			return
		}

		c.Next()
	}
}

// MachineKey guards the routes the hardware bridge calls. An empty configured
// key leaves them open, which is only meant for local development.
func (m *AuthMiddleware) MachineKey() gin.HandlerFunc {
	if m.machineAPIKey == "" {
		log.Println("AuthMiddleware: MACHINE_API_KEY is empty, bridge routes are unauthenticated")
	}
	return func(c *gin.Context) {
		if m.machineAPIKey == "" {
			c.Next()
			return
		}
		got := c.GetHeader(MachineKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(m.machineAPIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid machine key"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the caller stored by Authenticate.
func CurrentUser(c *gin.Context) (userID int, role string, ok bool) {
	idVal, exists := c.Get(UserIDKey)
	if !exists {
		return 0, "", false
	}
	userID, ok = idVal.(int)
	if !ok {
		return 0, "", false
	}
	role = c.GetString(UserRoleKey)
	return userID, role, true
}
