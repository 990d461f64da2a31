package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/api/middleware"
	"vendotrash/internal/domain"
)

func currentUser(c *gin.Context) (int, string, bool) {
	userID, role, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	}
	return userID, role, ok
}

func pathID(c *gin.Context, name, what string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context) (domain.PageQuery, bool) {
	var q domain.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pagination", "details": err.Error()})
		return q, false
	}
	return q, true
}

// wantsAll reports whether an admin asked for every row instead of their own.
func wantsAll(c *gin.Context, role string) bool {
	return role == domain.RoleAdmin && c.Query("all") == "true"
}
