package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type Reward struct {
	ID             int         `json:"id"`
	Name           string      `json:"name"`
	Description    null.String `json:"description"`
	PointsRequired int         `json:"points_required"`
	Category       string      `json:"category"` // wifi, data, voucher
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      null.Time   `json:"updated_at"`
}

type CreateRewardDTO struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	PointsRequired int    `json:"points_required" binding:"required,min=1"`
	Category       string `json:"category" binding:"required,oneof=wifi data voucher"`
	IsActive       *bool  `json:"is_active"`
}

// UpdateRewardDTO only touches the fields that are present.
type UpdateRewardDTO struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	PointsRequired *int    `json:"points_required" binding:"omitempty,min=1"`
	Category       *string `json:"category" binding:"omitempty,oneof=wifi data voucher"`
	IsActive       *bool   `json:"is_active"`
}

type Redemption struct {
	ID         int               `json:"id"`
	UserID     int               `json:"user_id"`
	RewardID   int               `json:"reward_id"`
	PointsUsed int               `json:"points_used"`
	Status     TransactionStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`

	Reward *Reward `json:"reward,omitempty"`
}

type CreateRedemptionDTO struct {
	RewardID   int `json:"reward_id" binding:"required"`
	PointsUsed int `json:"points_used" binding:"required,min=1"`
}
