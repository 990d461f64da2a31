package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"vendotrash/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")
var ErrInsufficientPoints = errors.New("not enough points")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	// FindByLogin matches either the username or the email.
	FindByLogin(ctx context.Context, login string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
	List(ctx context.Context, skip, limit int) ([]domain.User, int, error)
}

type MachineRepository interface {
	Create(ctx context.Context, machine *domain.Machine) (*domain.Machine, error)
	FindByID(ctx context.Context, id int) (*domain.Machine, error)
	FindByThingName(ctx context.Context, thingName string) (*domain.Machine, error)
	FindAll(ctx context.Context) ([]domain.Machine, error)
	UpdateStatus(ctx context.Context, id int, status domain.MachineStatus, at time.Time) error
	UpdateBinLevel(ctx context.Context, id int, fillPercent int, at time.Time) error
	Touch(ctx context.Context, id int, at time.Time) error
}

type TransactionRepository interface {
	// CreateWithCounters inserts the ledger row and bumps the user's and the
	// machine's counters in the same database transaction.
	CreateWithCounters(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	ListByUser(ctx context.Context, userID int, skip, limit int) ([]domain.Transaction, int, error)
	List(ctx context.Context, skip, limit int) ([]domain.Transaction, int, error)
}

type RewardRepository interface {
	Create(ctx context.Context, reward *domain.Reward) (*domain.Reward, error)
	FindByID(ctx context.Context, id int) (*domain.Reward, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Reward, error)
	Update(ctx context.Context, reward *domain.Reward) (*domain.Reward, error)
}

type RedemptionRepository interface {
	// CreateWithDeduction fails with ErrInsufficientPoints when the user's
	// balance is below PointsUsed; nothing is written in that case.
	CreateWithDeduction(ctx context.Context, redemption *domain.Redemption) (*domain.Redemption, error)
	FindByID(ctx context.Context, id int) (*domain.Redemption, error)
	ListByUser(ctx context.Context, userID int, skip, limit int) ([]domain.Redemption, int, error)
	List(ctx context.Context, skip, limit int) ([]domain.Redemption, int, error)
}

type MachineEventsLogRepository interface {
	Create(ctx context.Context, event *domain.MachineEventLog) error
}
