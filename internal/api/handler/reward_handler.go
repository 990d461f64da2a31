package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
	"vendotrash/internal/service"
)

type RewardHandler struct {
	rewardService *service.RewardService
}

func NewRewardHandler(rs *service.RewardService) *RewardHandler {
	return &RewardHandler{rewardService: rs}
}

// GET /rewards (?all=true for admins includes inactive rewards)
func (h *RewardHandler) ListRewards(c *gin.Context) {
	_, role, ok := currentUser(c)
	if !ok {
		return
	}
	rewards, err := h.rewardService.List(c.Request.Context(), wantsAll(c, role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list rewards", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rewards)
}

// GET /rewards/:id
func (h *RewardHandler) GetReward(c *gin.Context) {
	id, ok := pathID(c, "id", "reward")
	if !ok {
		return
	}
	reward, err := h.rewardService.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "could not load reward")
		return
	}
	c.JSON(http.StatusOK, reward)
}

// POST /rewards
func (h *RewardHandler) CreateReward(c *gin.Context) {
	var dto domain.CreateRewardDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reward, err := h.rewardService.Create(c.Request.Context(), dto)
	if err != nil {
		h.fail(c, err, "could not create reward")
		return
	}
	c.JSON(http.StatusCreated, reward)
}

// PUT /rewards/:id
func (h *RewardHandler) UpdateReward(c *gin.Context) {
	id, ok := pathID(c, "id", "reward")
	if !ok {
		return
	}
	var dto domain.UpdateRewardDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reward, err := h.rewardService.Update(c.Request.Context(), id, dto)
	if err != nil {
		h.fail(c, err, "could not update reward")
		return
	}
	c.JSON(http.StatusOK, reward)
}

// POST /redemptions
func (h *RewardHandler) Redeem(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	var dto domain.CreateRedemptionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	redemption, err := h.rewardService.Redeem(c.Request.Context(), userID, dto)
	if err != nil {
		h.fail(c, err, "could not redeem reward")
		return
	}
	c.JSON(http.StatusCreated, redemption)
}

// GET /redemptions (?all=true for admins)
func (h *RewardHandler) ListRedemptions(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	q, ok := pageQuery(c)
	if !ok {
		return
	}

	var (
		page domain.Page[domain.Redemption]
		err  error
	)
	if wantsAll(c, role) {
		page, err = h.rewardService.ListRedemptions(c.Request.Context(), q)
	} else {
		page, err = h.rewardService.ListRedemptionsForUser(c.Request.Context(), userID, q)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list redemptions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /redemptions/:id
func (h *RewardHandler) GetRedemption(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "redemption")
	if !ok {
		return
	}
	rd, err := h.rewardService.GetRedemption(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "could not load redemption")
		return
	}
	if rd.UserID != userID && role != domain.RoleAdmin {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrRedemptionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, rd)
}

func (h *RewardHandler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrRewardNotFound), errors.Is(err, service.ErrRedemptionNotFound),
		errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRewardInactive), errors.Is(err, service.ErrPointsMismatch),
		errors.Is(err, service.ErrInsufficientPoints):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateEntry):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "details": err.Error()})
	}
}
