package notification

import (
	"context"
	"fmt"

	"github.com/medremind-api/internal/domain"
)

type notificationStore interface {
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
}

type Service interface {
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	Get(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error)
}

type service struct {
	repo notificationStore
}

func NewService(repo notificationStore) Service {
	return &service{repo: repo}
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnread(ctx, userID)
}

func (s *service) Get(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error) {
	return s.getOwned(ctx, notificationID, requesterID)
}

func (s *service) MarkAsRead(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error) {
	if _, err := s.getOwned(ctx, notificationID, requesterID); err != nil {
		return nil, err
	}
	return s.repo.MarkAsRead(ctx, notificationID)
}

func (s *service) getOwned(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != requesterID {
		return nil, fmt.Errorf("notification belongs to another user: %w", domain.ErrForbidden)
	}
	return n, nil
}
