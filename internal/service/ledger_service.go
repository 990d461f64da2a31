package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

var ErrNothingToRecord = errors.New("rejected items earn no points and are not recorded")
var ErrTransactionNotFound = errors.New("transaction not found")

// LedgerService owns the points ledger: one row per accepted deposit.
type LedgerService struct {
	txRepo repository.TransactionRepository
}

func NewLedgerService(txRepo repository.TransactionRepository) *LedgerService {
	return &LedgerService{txRepo: txRepo}
}

// Record books an accepted verdict. Points follow the material.
func (s *LedgerService) Record(ctx context.Context, userID, machineID int, material domain.Material) (*domain.Transaction, error) {
	if material != domain.MaterialPlastic && material != domain.MaterialNonPlastic {
		return nil, ErrNothingToRecord
	}

	tx := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		MachineID:    machineID,
		Material:     material,
		PointsEarned: material.Points(),
		Status:       domain.TransactionCompleted,
	}
	created, err := s.txRepo.CreateWithCounters(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("LedgerService.Record: %w", err)
	}
	log.Printf("LedgerService: user %d earned %d points for %s at machine %d (tx %s)",
		userID, created.PointsEarned, material, machineID, created.ID)
	return created, nil
}

func (s *LedgerService) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("LedgerService.Get: %w", err)
	}
	return tx, nil
}

func (s *LedgerService) ListForUser(ctx context.Context, userID int, q domain.PageQuery) (domain.Page[domain.Transaction], error) {
	txs, total, err := s.txRepo.ListByUser(ctx, userID, q.Skip, q.Limit)
	if err != nil {
		return domain.Page[domain.Transaction]{}, fmt.Errorf("LedgerService.ListForUser: %w", err)
	}
	return domain.NewPage(txs, total, q), nil
}

func (s *LedgerService) ListAll(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Transaction], error) {
	txs, total, err := s.txRepo.List(ctx, q.Skip, q.Limit)
	if err != nil {
		return domain.Page[domain.Transaction]{}, fmt.Errorf("LedgerService.ListAll: %w", err)
	}
	return domain.NewPage(txs, total, q), nil
}
