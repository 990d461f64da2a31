package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/service"
)

// BridgeHandler serves the polling endpoints of the hardware bridge. It has no
// user of its own and asks for whoever is at the machine.
type BridgeHandler struct {
	vendoService *service.VendoService
}

func NewBridgeHandler(vs *service.VendoService) *BridgeHandler {
	return &BridgeHandler{vendoService: vs}
}

// GET /api/vendo/session-status
func (h *BridgeHandler) SessionStatus(c *gin.Context) {
	status, err := h.vendoService.SessionStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/vendo/active-token
func (h *BridgeHandler) ActiveToken(c *gin.Context) {
	tok, err := h.vendoService.ActiveToken(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tok)
}

// GET /api/vendo/test
func (h *BridgeHandler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "bridge endpoint reachable"})
}
