package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/domain"
	"vendotrash/internal/service"
)

type MachineHandler struct {
	machineService *service.MachineService
}

func NewMachineHandler(ms *service.MachineService) *MachineHandler {
	return &MachineHandler{machineService: ms}
}

// GET /machines
func (h *MachineHandler) ListMachines(c *gin.Context) {
	machines, err := h.machineService.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list machines", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GET /machines/:id
func (h *MachineHandler) GetMachine(c *gin.Context) {
	id, ok := pathID(c, "id", "machine")
	if !ok {
		return
	}
	m, err := h.machineService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMachineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load machine", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

// POST /machines
func (h *MachineHandler) CreateMachine(c *gin.Context) {
	var dto domain.MachineDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.machineService.Create(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrMachineExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create machine", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, m)
}

// PUT /machines/:id/status
func (h *MachineHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id", "machine")
	if !ok {
		return
	}
	var dto domain.MachineStatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.machineService.UpdateStatus(c.Request.Context(), id, dto.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMachineNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidMachineStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update machine", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, m)
}
