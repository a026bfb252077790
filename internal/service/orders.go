package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/storage"
)

// OrderService: просмотр групп заказов: игрок видит только свои, администратор все
type OrderService interface {
	ListForPlayer(ctx context.Context, userID int64) ([]*models.OrderGroup, error)
	GetForPlayer(ctx context.Context, userID int64, groupID string) (*models.OrderGroup, error)
	ListAll(ctx context.Context) ([]*models.OrderGroup, error)
	Get(ctx context.Context, groupID string) (*models.OrderGroup, error)
}

type orderService struct {
	log       *slog.Logger
	orderRepo storage.OrderStorage
}

func NewOrderService(log *slog.Logger, orderRepo storage.OrderStorage) OrderService {
	return &orderService{log: log, orderRepo: orderRepo}
}

func (s *orderService) ListForPlayer(ctx context.Context, userID int64) ([]*models.OrderGroup, error) {
	const op = "service.OrderService.ListForPlayer"

	groups, err := s.orderRepo.ListGroupsByUser(ctx, userID)
	if err != nil {
		s.log.Error("failed to list order groups", slog.String("op", op), slog.Int64("userID", userID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nonNil(groups), nil
}

func (s *orderService) GetForPlayer(ctx context.Context, userID int64, groupID string) (*models.OrderGroup, error) {
	const op = "service.OrderService.GetForPlayer"

	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	// чужая группа неотличима от несуществующей
	if group.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
	}
	return group, nil
}

func (s *orderService) ListAll(ctx context.Context) ([]*models.OrderGroup, error) {
	const op = "service.OrderService.ListAll"

	groups, err := s.orderRepo.ListGroups(ctx)
	if err != nil {
		s.log.Error("failed to list order groups", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nonNil(groups), nil
}

func (s *orderService) Get(ctx context.Context, groupID string) (*models.OrderGroup, error) {
	const op = "service.OrderService.Get"

	group, err := s.orderRepo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		s.log.Error("failed to get order group", slog.String("op", op), slog.String("groupID", groupID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return group, nil
}

func nonNil(groups []*models.OrderGroup) []*models.OrderGroup {
	if groups == nil {
		return []*models.OrderGroup{}
	}
	return groups
}
