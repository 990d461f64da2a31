package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

type pgRewardRepository struct {
	db *sql.DB
}

func NewPgRewardRepository(db *sql.DB) repository.RewardRepository {
	return &pgRewardRepository{db: db}
}

const rewardColumns = `id, name, description, points_required, category, is_active, created_at, updated_at`

func scanReward(row interface{ Scan(...any) error }, rw *domain.Reward) error {
	err := row.Scan(&rw.ID, &rw.Name, &rw.Description, &rw.PointsRequired, &rw.Category, &rw.IsActive,
		&rw.CreatedAt, &rw.UpdatedAt)
	if err != nil {
		return err
	}
	rw.CreatedAt = rw.CreatedAt.In(time.UTC)
	if rw.UpdatedAt.Valid {
		rw.UpdatedAt.Time = rw.UpdatedAt.Time.In(time.UTC)
	}
	return nil
}

func (r *pgRewardRepository) Create(ctx context.Context, rw *domain.Reward) (*domain.Reward, error) {
	query := `INSERT INTO rewards (name, description, points_required, category, is_active, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, rw.Name, rw.Description, rw.PointsRequired, rw.Category, rw.IsActive).
		Scan(&rw.ID, &rw.CreatedAt, &rw.UpdatedAt)
	if err != nil {
		if uniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: reward '%s' already exists", repository.ErrDuplicateEntry, rw.Name)
		}
		return nil, fmt.Errorf("RewardRepository.Create: %w", err)
	}
	rw.CreatedAt = rw.CreatedAt.In(time.UTC)
	return rw, nil
}

func (r *pgRewardRepository) FindByID(ctx context.Context, id int) (*domain.Reward, error) {
	rw := &domain.Reward{}
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = $1`
	if err := scanReward(r.db.QueryRowContext(ctx, query, id), rw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("RewardRepository.FindByID: %w", err)
	}
	return rw, nil
}

func (r *pgRewardRepository) List(ctx context.Context, activeOnly bool) ([]domain.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY points_required, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("RewardRepository.List: %w", err)
	}
	defer rows.Close()

	var rewards []domain.Reward
	for rows.Next() {
		var rw domain.Reward
		if err := scanReward(rows, &rw); err != nil {
			return nil, fmt.Errorf("RewardRepository.List (scan): %w", err)
		}
		rewards = append(rewards, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RewardRepository.List (rows): %w", err)
	}
	return rewards, nil
}

func (r *pgRewardRepository) Update(ctx context.Context, rw *domain.Reward) (*domain.Reward, error) {
	query := `UPDATE rewards SET name = $1, description = $2, points_required = $3, category = $4,
	                 is_active = $5, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $6 RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, rw.Name, rw.Description, rw.PointsRequired, rw.Category, rw.IsActive, rw.ID).
		Scan(&rw.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("RewardRepository.Update: %w", err)
	}
	if rw.UpdatedAt.Valid {
		rw.UpdatedAt.Time = rw.UpdatedAt.Time.In(time.UTC)
	}
	return rw, nil
}
