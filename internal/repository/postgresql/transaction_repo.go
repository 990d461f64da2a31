package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

type pgTransactionRepository struct {
	db *sql.DB
}

func NewPgTransactionRepository(db *sql.DB) repository.TransactionRepository {
	return &pgTransactionRepository{db: db}
}

const transactionColumns = `id, user_id, machine_id, material_type, points_earned, status, created_at`

func scanTransaction(row interface{ Scan(...any) error }, t *domain.Transaction) error {
	if err := row.Scan(&t.ID, &t.UserID, &t.MachineID, &t.Material, &t.PointsEarned, &t.Status, &t.CreatedAt); err != nil {
		return err
	}
	t.CreatedAt = t.CreatedAt.In(time.UTC)
	return nil
}

func (r *pgTransactionRepository) CreateWithCounters(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = domain.TransactionCompleted
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("TransactionRepository.CreateWithCounters (begin): %w", err)
	}
	defer dbTx.Rollback()

	err = dbTx.QueryRowContext(ctx,
		`INSERT INTO transactions (id, user_id, machine_id, material_type, points_earned, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP) RETURNING created_at`,
		t.ID, t.UserID, t.MachineID, t.Material, t.PointsEarned, t.Status,
	).Scan(&t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("TransactionRepository.CreateWithCounters (insert): %w", err)
	}

	plastic, metal := 0, 0
	switch t.Material {
	case domain.MaterialPlastic:
		plastic = 1
	case domain.MaterialNonPlastic:
		metal = 1
	}
	res, err := dbTx.ExecContext(ctx,
		`UPDATE users SET total_points = total_points + $1, total_plastic = total_plastic + $2,
		        total_metal = total_metal + $3, total_transactions = total_transactions + 1,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = $4`,
		t.PointsEarned, plastic, metal, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("TransactionRepository.CreateWithCounters (user counters): %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: user %d", repository.ErrNotFound, t.UserID)
	}

	_, err = dbTx.ExecContext(ctx,
		`UPDATE vendo_machines SET total_collected = total_collected + 1, last_activity = CURRENT_TIMESTAMP,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = $1`, t.MachineID)
	if err != nil {
		return nil, fmt.Errorf("TransactionRepository.CreateWithCounters (machine counters): %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("TransactionRepository.CreateWithCounters (commit): %w", err)
	}
	t.CreatedAt = t.CreatedAt.In(time.UTC)
	return t, nil
}

func (r *pgTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, id), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("TransactionRepository.FindByID: %w", err)
	}
	return t, nil
}

func (r *pgTransactionRepository) ListByUser(ctx context.Context, userID int, skip, limit int) ([]domain.Transaction, int, error) {
	return r.list(ctx, "ListByUser", `WHERE user_id = $1`, []any{userID}, skip, limit)
}

func (r *pgTransactionRepository) List(ctx context.Context, skip, limit int) ([]domain.Transaction, int, error) {
	return r.list(ctx, "List", "", nil, skip, limit)
}

func (r *pgTransactionRepository) list(ctx context.Context, op, where string, args []any, skip, limit int) ([]domain.Transaction, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("TransactionRepository.%s (count): %w", op, err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC OFFSET $%d LIMIT $%d`,
		transactionColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, skip, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("TransactionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, 0, fmt.Errorf("TransactionRepository.%s (scan): %w", op, err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("TransactionRepository.%s (rows): %w", op, err)
	}
	return txs, total, nil
}
