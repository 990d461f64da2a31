package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/api/middleware"
	"vendotrash/internal/domain"
	"vendotrash/internal/service"
)

type VendoHandler struct {
	vendoService   *service.VendoService
	machineService *service.MachineService
}

func NewVendoHandler(vs *service.VendoService, ms *service.MachineService) *VendoHandler {
	return &VendoHandler{vendoService: vs, machineService: ms}
}

// POST /vendo/prepare-insert
func (h *VendoHandler) PrepareInsert(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	token := c.GetString(middleware.AccessTokenKey)

	rec, err := h.vendoService.PrepareInsert(c.Request.Context(), userID, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open insert session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"user_id":     rec.UserID,
		"expires_at":  rec.ExpiresAt,
		"ttl_seconds": int(rec.ExpiresAt.Sub(rec.CreatedAt).Seconds()),
	})
}

// POST /vendo/end-insert
func (h *VendoHandler) EndInsert(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	ended, err := h.vendoService.EndInsert(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not end insert session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": ended})
}

// GET /vendo/session
func (h *VendoHandler) Session(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.vendoService.UserSession(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read session", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// POST /vendo/classify
func (h *VendoHandler) Classify(c *gin.Context) {
	h.classify(c, h.vendoService.CaptureAndClassify)
}

// POST /api/vendo/capture-and-classify
func (h *VendoHandler) ClassifyForMachine(c *gin.Context) {
	h.classify(c, h.vendoService.CaptureForActiveCustomer)
}

type captureFunc func(ctx context.Context, userID, machineID int, image []byte) (*domain.ClassifyResponseDTO, error)

func (h *VendoHandler) classify(c *gin.Context, capture captureFunc) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req domain.ClassifyRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
		return
	}
	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		log.Printf("VendoHandler: bad image from user %d: %v", userID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image data"})
		return
	}

	resp, err := capture(c.Request.Context(), userID, req.MachineID, image)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSession):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": string(domain.SignalNoSession)})
		case errors.Is(err, service.ErrNotActiveCustomer):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "NOT_ACTIVE_CUSTOMER"})
		case errors.Is(err, service.ErrEmptyImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrVisionUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image analysis unavailable", "details": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /vendo/history
func (h *VendoHandler) History(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	entries, err := h.vendoService.History(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// DELETE /vendo/history
func (h *VendoHandler) ClearHistory(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.vendoService.ClearHistory(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear history", "details": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /vendo/command
func (h *VendoHandler) SendCommand(c *gin.Context) {
	var dto domain.SortCommandDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID, err := h.machineService.SendSortCommand(c.Request.Context(), dto.MachineID, dto.Material)
	if err != nil {
		if errors.Is(err, service.ErrCommandUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send sort command", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sort command sent", "request_id": requestID})
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(raw string) ([]byte, error) {
	if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
}
