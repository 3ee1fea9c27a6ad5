package middleware

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
)

// AdminOnlyMiddleware checks the user's role from the database on each
// request, so a demoted account loses access without waiting for token
// expiry.
func AdminOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return requireRole(db, domain.RoleAdmin, "Admin access required")
}

// StudentOnlyMiddleware restricts a route to active student accounts.
func StudentOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return requireRole(db, domain.RoleStudent, "Student account required")
}

func requireRole(db *gorm.DB, role, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var user domain.User
		if err := db.First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		if user.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		if role == domain.RoleStudent && !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account has been deactivated"})
			return
		}
		c.Next()
	}
}
