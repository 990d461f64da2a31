package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
	"vendotrash/internal/service"
)

type TransactionHandler struct {
	ledger *service.LedgerService
}

func NewTransactionHandler(ls *service.LedgerService) *TransactionHandler {
	return &TransactionHandler{ledger: ls}
}

// GET /transactions (?all=true for admins)
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	q, ok := pageQuery(c)
	if !ok {
		return
	}

	var (
		page domain.Page[domain.Transaction]
		err  error
	)
	if wantsAll(c, role) {
		page, err = h.ledger.ListAll(c.Request.Context(), q)
	} else {
		page, err = h.ledger.ListForUser(c.Request.Context(), userID, q)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transactions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}

	tx, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load transaction", "details": err.Error()})
		return
	}
	if tx.UserID != userID && role != domain.RoleAdmin {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrTransactionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// POST /transactions (admin manual credit)
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var dto domain.CreateTransactionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := h.ledger.Record(c.Request.Context(), dto.UserID, dto.MachineID, dto.Material)
	if err != nil {
		if errors.Is(err, service.ErrNothingToRecord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "details": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record transaction", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tx)
}
