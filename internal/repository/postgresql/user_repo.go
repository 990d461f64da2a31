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

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) repository.UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, email, username, password_hash, role, is_active, total_points, total_plastic,
	total_metal, total_transactions, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, user *domain.User) error {
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Password, &user.Role, &user.IsActive,
		&user.TotalPoints, &user.TotalPlastic, &user.TotalMetal, &user.TotalTransactions,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return err
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	if user.UpdatedAt.Valid {
		user.UpdatedAt.Time = user.UpdatedAt.Time.In(time.UTC)
	}
	return nil
}

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `INSERT INTO users (email, username, password_hash, role, is_active, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, is_active, created_at, updated_at`
	// user.Password is already the bcrypt hash
	err := r.db.QueryRowContext(ctx, query, user.Email, user.Username, user.Password, user.Role).
		Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if uniqueViolation(err, "users_username_key") {
			return nil, fmt.Errorf("%w: username '%s' is taken", repository.ErrDuplicateEntry, user.Username)
		}
		if uniqueViolation(err, "users_email_key") {
			return nil, fmt.Errorf("%w: email '%s' is already registered", repository.ErrDuplicateEntry, user.Email)
		}
		return nil, fmt.Errorf("UserRepository.Create: %w", err)
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) findOne(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	user := &domain.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	if err := scanUser(r.db.QueryRowContext(ctx, query, arg), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("UserRepository.%s: %w", op, err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "FindByUsername", `username = $1`, username)
}

func (r *pgUserRepository) FindByLogin(ctx context.Context, login string) (*domain.User, error) {
	return r.findOne(ctx, "FindByLogin", `username = $1 OR lower(email) = lower($1) ORDER BY id LIMIT 1`, login)
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	return r.findOne(ctx, "FindByID", `id = $1`, id)
}

func (r *pgUserRepository) List(ctx context.Context, skip, limit int) ([]domain.User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("UserRepository.List (count): %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("UserRepository.List: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, fmt.Errorf("UserRepository.List (scan): %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("UserRepository.List (rows): %w", err)
	}
	return users, total, nil
}
