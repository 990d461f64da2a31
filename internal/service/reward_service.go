package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gopkg.in/guregu/null.v4"

	"vendotrash/internal/domain"
	"vendotrash/internal/repository"
)

var ErrRewardNotFound = errors.New("reward not found")
var ErrRewardInactive = errors.New("reward is not available")
var ErrPointsMismatch = errors.New("points_used does not match the reward's points_required")
var ErrInsufficientPoints = errors.New("not enough points for this reward")
var ErrRedemptionNotFound = errors.New("redemption not found")

// RewardService manages the catalog and the redemptions made against it.
type RewardService struct {
	rewardRepo     repository.RewardRepository
	redemptionRepo repository.RedemptionRepository
	userRepo       repository.UserRepository
}

func NewRewardService(rewardRepo repository.RewardRepository, redemptionRepo repository.RedemptionRepository, userRepo repository.UserRepository) *RewardService {
	return &RewardService{
		rewardRepo:     rewardRepo,
		redemptionRepo: redemptionRepo,
		userRepo:       userRepo,
	}
}

func (s *RewardService) Create(ctx context.Context, dto domain.CreateRewardDTO) (*domain.Reward, error) {
	reward := &domain.Reward{
		Name:           dto.Name,
		Description:    null.NewString(dto.Description, dto.Description != ""),
		PointsRequired: dto.PointsRequired,
		Category:       dto.Category,
		IsActive:       true,
	}
	if dto.IsActive != nil {
		reward.IsActive = *dto.IsActive
	}
	created, err := s.rewardRepo.Create(ctx, reward)
	if err != nil {
		return nil, fmt.Errorf("RewardService.Create: %w", err)
	}
	return created, nil
}

func (s *RewardService) Get(ctx context.Context, id int) (*domain.Reward, error) {
	reward, err := s.rewardRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("RewardService.Get: %w", err)
	}
	return reward, nil
}

func (s *RewardService) List(ctx context.Context, includeInactive bool) ([]domain.Reward, error) {
	rewards, err := s.rewardRepo.List(ctx, !includeInactive)
	if err != nil {
		return nil, fmt.Errorf("RewardService.List: %w", err)
	}
	if rewards == nil {
		rewards = []domain.Reward{}
	}
	return rewards, nil
}

func (s *RewardService) Update(ctx context.Context, id int, dto domain.UpdateRewardDTO) (*domain.Reward, error) {
	reward, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto.Name != nil {
		reward.Name = *dto.Name
	}
	if dto.Description != nil {
		reward.Description = null.NewString(*dto.Description, *dto.Description != "")
	}
	if dto.PointsRequired != nil {
		reward.PointsRequired = *dto.PointsRequired
	}
	if dto.Category != nil {
		reward.Category = *dto.Category
	}
	if dto.IsActive != nil {
		reward.IsActive = *dto.IsActive
	}

	updated, err := s.rewardRepo.Update(ctx, reward)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("RewardService.Update: %w", err)
	}
	return updated, nil
}

// Redeem spends the user's points on a reward. The balance check is repeated
// inside the database transaction.
func (s *RewardService) Redeem(ctx context.Context, userID int, dto domain.CreateRedemptionDTO) (*domain.Redemption, error) {
	reward, err := s.Get(ctx, dto.RewardID)
	if err != nil {
		return nil, err
	}
	if !reward.IsActive {
		return nil, ErrRewardInactive
	}
	if dto.PointsUsed != reward.PointsRequired {
		return nil, ErrPointsMismatch
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("RewardService.Redeem: %w", err)
	}
	if user.TotalPoints < dto.PointsUsed {
		return nil, ErrInsufficientPoints
	}

	redemption, err := s.redemptionRepo.CreateWithDeduction(ctx, &domain.Redemption{
		UserID:     userID,
		RewardID:   reward.ID,
		PointsUsed: dto.PointsUsed,
		Status:     domain.TransactionCompleted,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, ErrInsufficientPoints
		}
		return nil, fmt.Errorf("RewardService.Redeem: %w", err)
	}
	redemption.Reward = reward
	log.Printf("RewardService: user %d redeemed reward %d for %d points", userID, reward.ID, dto.PointsUsed)
	return redemption, nil
}

func (s *RewardService) GetRedemption(ctx context.Context, id int) (*domain.Redemption, error) {
	rd, err := s.redemptionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("RewardService.GetRedemption: %w", err)
	}
	return rd, nil
}

func (s *RewardService) ListRedemptionsForUser(ctx context.Context, userID int, q domain.PageQuery) (domain.Page[domain.Redemption], error) {
	items, total, err := s.redemptionRepo.ListByUser(ctx, userID, q.Skip, q.Limit)
	if err != nil {
		return domain.Page[domain.Redemption]{}, fmt.Errorf("RewardService.ListRedemptionsForUser: %w", err)
	}
	return domain.NewPage(items, total, q), nil
}

func (s *RewardService) ListRedemptions(ctx context.Context, q domain.PageQuery) (domain.Page[domain.Redemption], error) {
	items, total, err := s.redemptionRepo.List(ctx, q.Skip, q.Limit)
	if err != nil {
		return domain.Page[domain.Redemption]{}, fmt.Errorf("RewardService.ListRedemptions: %w", err)
	}
	return domain.NewPage(items, total, q), nil
}
