package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

type User struct {
	ID                int       `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	Password          string    `json:"-"` // bcrypt hash, never serialized
	Role              string    `json:"role"`
	IsActive          bool      `json:"is_active"`
	TotalPoints       int       `json:"total_points"`
	TotalPlastic      int       `json:"total_plastic"`
	TotalMetal        int       `json:"total_metal"`
	TotalTransactions int       `json:"total_transactions"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         null.Time `json:"updated_at"`
}

type RegisterUserDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=100"`
}

// LoginUserDTO accepts either the username or the email in Username.
type LoginUserDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type PageQuery struct {
	Skip  int `form:"skip,default=0" binding:"min=0"`
	Limit int `form:"limit,default=20" binding:"min=1,max=1000"`
}

// Page is the paginated list envelope used by every list endpoint.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Skip    int  `json:"skip"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

func NewPage[T any](items []T, total int, q PageQuery) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:   items,
		Total:   total,
		Skip:    q.Skip,
		Limit:   q.Limit,
		HasMore: q.Skip+q.Limit < total,
	}
}
