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

type pgMachineRepository struct {
	db *sql.DB
}

func NewPgMachineRepository(db *sql.DB) repository.MachineRepository {
	return &pgMachineRepository{db: db}
}

const machineColumns = `id, name, location, status, thing_name, last_activity, bin_capacity,
	bin_fill_percent, total_collected, created_at, updated_at`

func scanMachine(row interface{ Scan(...any) error }, m *domain.Machine) error {
	err := row.Scan(&m.ID, &m.Name, &m.Location, &m.Status, &m.ThingName, &m.LastActivity,
		&m.BinCapacity, &m.BinFillPercent, &m.TotalCollected, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return err
	}
	m.CreatedAt = m.CreatedAt.In(time.UTC)
	if m.LastActivity.Valid {
		m.LastActivity.Time = m.LastActivity.Time.In(time.UTC)
	}
	if m.UpdatedAt.Valid {
		m.UpdatedAt.Time = m.UpdatedAt.Time.In(time.UTC)
	}
	return nil
}

func (r *pgMachineRepository) Create(ctx context.Context, m *domain.Machine) (*domain.Machine, error) {
	if m.Status == "" {
		m.Status = domain.MachineOffline
	}
	query := `INSERT INTO vendo_machines (name, location, status, thing_name, bin_capacity, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, m.Name, m.Location, m.Status, m.ThingName, m.BinCapacity).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if uniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: machine '%s' already exists", repository.ErrDuplicateEntry, m.Name)
		}
		return nil, fmt.Errorf("MachineRepository.Create: %w", err)
	}
	m.CreatedAt = m.CreatedAt.In(time.UTC)
	return m, nil
}

func (r *pgMachineRepository) FindByID(ctx context.Context, id int) (*domain.Machine, error) {
	m := &domain.Machine{}
	query := `SELECT ` + machineColumns + ` FROM vendo_machines WHERE id = $1`
	if err := scanMachine(r.db.QueryRowContext(ctx, query, id), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("MachineRepository.FindByID: %w", err)
	}
	return m, nil
}

func (r *pgMachineRepository) FindByThingName(ctx context.Context, thingName string) (*domain.Machine, error) {
	m := &domain.Machine{}
	query := `SELECT ` + machineColumns + ` FROM vendo_machines WHERE thing_name = $1`
	if err := scanMachine(r.db.QueryRowContext(ctx, query, thingName), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("MachineRepository.FindByThingName: %w", err)
	}
	return m, nil
}

func (r *pgMachineRepository) FindAll(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+machineColumns+` FROM vendo_machines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("MachineRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var machines []domain.Machine
	for rows.Next() {
		var m domain.Machine
		if err := scanMachine(rows, &m); err != nil {
			return nil, fmt.Errorf("MachineRepository.FindAll (scan): %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MachineRepository.FindAll (rows): %w", err)
	}
	return machines, nil
}

func (r *pgMachineRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("MachineRepository.%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("MachineRepository.%s (rows affected): %w", op, err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgMachineRepository) UpdateStatus(ctx context.Context, id int, status domain.MachineStatus, at time.Time) error {
	return r.exec(ctx, "UpdateStatus",
		`UPDATE vendo_machines SET status = $1, last_activity = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		status, at, id)
}

func (r *pgMachineRepository) UpdateBinLevel(ctx context.Context, id int, fillPercent int, at time.Time) error {
	return r.exec(ctx, "UpdateBinLevel",
		`UPDATE vendo_machines SET bin_fill_percent = $1, last_activity = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		fillPercent, at, id)
}

func (r *pgMachineRepository) Touch(ctx context.Context, id int, at time.Time) error {
	return r.exec(ctx, "Touch",
		`UPDATE vendo_machines SET last_activity = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		at, id)
}
