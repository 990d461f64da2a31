package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "Completed"
	TransactionPending   TransactionStatus = "Pending"
	TransactionFailed    TransactionStatus = "Failed"
)

// Transaction is one ledger row: a single accepted deposit.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	UserID       int               `json:"user_id"`
	MachineID    int               `json:"machine_id"`
	Material     Material          `json:"material_type"`
	PointsEarned int               `json:"points_earned"`
	Status       TransactionStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// CreateTransactionDTO is a manual credit booked by an admin.
type CreateTransactionDTO struct {
	UserID    int      `json:"user_id" binding:"required"`
	MachineID int      `json:"machine_id" binding:"required"`
	Material  Material `json:"material_type" binding:"required,oneof=PLASTIC NON_PLASTIC"`
}
