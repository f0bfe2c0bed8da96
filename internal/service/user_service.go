package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grts/internal/dto"
	"grts/internal/models"
	"grts/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService covers account administration and the fuel cards that map
// incoming transactions to officers.
type UserService struct {
	users  repository.UserStore
	cards  repository.CardStore
	logger *zap.Logger
}

func NewUserService(users repository.UserStore, cards repository.CardStore, logger *zap.Logger) *UserService {
	return &UserService{users: users, cards: cards, logger: logger}
}

func (s *UserService) Me(ctx context.Context, actor Actor) (*dto.UserResponse, error) {
	u, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	resp := ToUserResponse(u)
	return &resp, nil
}

func (s *UserService) List(ctx context.Context, actor Actor) ([]dto.UserResponse, error) {
	if !actor.IsManager() {
		return nil, ErrForbidden
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ToUserResponse(u))
	}
	return out, nil
}

func (s *UserService) UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, req dto.UpdateRoleRequest) error {
	if !actor.IsManager() {
		return ErrForbidden
	}
	if fields := dto.Validate(&req); fields != nil {
		return &FieldError{Fields: fields}
	}
	if err := s.users.UpdateRole(ctx, id, models.Role(req.Role)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.logger.Info("User role updated",
		zap.String("user_id", id.String()),
		zap.String("role", req.Role),
		zap.String("manager_id", actor.UserID.String()),
	)
	return nil
}

func (s *UserService) Cards(ctx context.Context, actor Actor) ([]dto.CardResponse, error) {
	cards, err := s.cards.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	out := make([]dto.CardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, dto.CardResponse{CardLast4: c.CardLast4, CreatedAt: c.CreatedAt.Format(time.RFC3339)})
	}
	return out, nil
}

// AddCard registers a card for the caller. Re-adding one's own card is a no-op.
func (s *UserService) AddCard(ctx context.Context, actor Actor, req dto.CardRequest) (*dto.CardResponse, error) {
	if fields := dto.Validate(&req); fields != nil {
		return nil, &FieldError{Fields: fields}
	}
	last4 := strings.TrimSpace(req.CardLast4)

	owner, err := s.cards.OwnerOf(ctx, last4)
	switch {
	case err == nil && owner != actor.UserID:
		return nil, ErrCardTaken
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	card := &models.Card{UserID: actor.UserID, CardLast4: last4, CreatedAt: time.Now()}
	if err := s.cards.Add(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to add card: %w", err)
	}
	return &dto.CardResponse{CardLast4: card.CardLast4, CreatedAt: card.CreatedAt.Format(time.RFC3339)}, nil
}

func (s *UserService) RemoveCard(ctx context.Context, actor Actor, last4 string) error {
	if err := s.cards.Remove(ctx, actor.UserID, last4); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("card %s: %w", last4, ErrCardNotFound)
		}
		return err
	}
	return nil
}
