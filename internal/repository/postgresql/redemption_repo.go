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

type pgRedemptionRepository struct {
	db *sql.DB
}

func NewPgRedemptionRepository(db *sql.DB) repository.RedemptionRepository {
	return &pgRedemptionRepository{db: db}
}

const redemptionColumns = `id, user_id, reward_id, points_used, status, created_at`

func scanRedemption(row interface{ Scan(...any) error }, rd *domain.Redemption) error {
	if err := row.Scan(&rd.ID, &rd.UserID, &rd.RewardID, &rd.PointsUsed, &rd.Status, &rd.CreatedAt); err != nil {
		return err
	}
	rd.CreatedAt = rd.CreatedAt.In(time.UTC)
	return nil
}

func (r *pgRedemptionRepository) CreateWithDeduction(ctx context.Context, rd *domain.Redemption) (*domain.Redemption, error) {
	if rd.Status == "" {
		rd.Status = domain.TransactionCompleted
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RedemptionRepository.CreateWithDeduction (begin): %w", err)
	}
	defer dbTx.Rollback()

	// balance never goes below zero
	res, err := dbTx.ExecContext(ctx,
		`UPDATE users SET total_points = total_points - $1, updated_at = CURRENT_TIMESTAMP
		  WHERE id = $2 AND total_points >= $1`, rd.PointsUsed, rd.UserID)
	if err != nil {
		return nil, fmt.Errorf("RedemptionRepository.CreateWithDeduction (deduct): %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repository.ErrInsufficientPoints
	}

	err = dbTx.QueryRowContext(ctx,
		`INSERT INTO redemptions (user_id, reward_id, points_used, status, created_at)
		 VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP) RETURNING id, created_at`,
		rd.UserID, rd.RewardID, rd.PointsUsed, rd.Status,
	).Scan(&rd.ID, &rd.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("RedemptionRepository.CreateWithDeduction (insert): %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("RedemptionRepository.CreateWithDeduction (commit): %w", err)
	}
	rd.CreatedAt = rd.CreatedAt.In(time.UTC)
	return rd, nil
}

func (r *pgRedemptionRepository) FindByID(ctx context.Context, id int) (*domain.Redemption, error) {
	rd := &domain.Redemption{}
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE id = $1`
	if err := scanRedemption(r.db.QueryRowContext(ctx, query, id), rd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("RedemptionRepository.FindByID: %w", err)
	}
	return rd, nil
}

func (r *pgRedemptionRepository) ListByUser(ctx context.Context, userID int, skip, limit int) ([]domain.Redemption, int, error) {
	return r.list(ctx, "ListByUser", `WHERE user_id = $1`, []any{userID}, skip, limit)
}

func (r *pgRedemptionRepository) List(ctx context.Context, skip, limit int) ([]domain.Redemption, int, error) {
	return r.list(ctx, "List", "", nil, skip, limit)
}

func (r *pgRedemptionRepository) list(ctx context.Context, op, where string, args []any, skip, limit int) ([]domain.Redemption, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM redemptions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("RedemptionRepository.%s (count): %w", op, err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM redemptions %s ORDER BY created_at DESC OFFSET $%d LIMIT $%d`,
		redemptionColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, skip, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("RedemptionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Redemption
	for rows.Next() {
		var rd domain.Redemption
		if err := scanRedemption(rows, &rd); err != nil {
			return nil, 0, fmt.Errorf("RedemptionRepository.%s (scan): %w", op, err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("RedemptionRepository.%s (rows): %w", op, err)
	}
	return out, total, nil
}
