package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(us *service.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

// GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	h.respondUser(c, userID)
}

// GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id", "user")
	if !ok {
		return
	}
	h.respondUser(c, id)
}

func (h *UserHandler) respondUser(c *gin.Context, id int) {
	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

// GET /users
func (h *UserHandler) ListUsers(c *gin.Context) {
	q, ok := pageQuery(c)
	if !ok {
		return
	}
	page, err := h.userService.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list users", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}
