package device

import (
	"context"
	"time"

	"github.com/medremind-api/internal/domain"
	"github.com/medremind-api/internal/pkg/id"
)

type deviceStore interface {
	Put(ctx context.Context, d *domain.Device) error
	ListByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID string, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, deviceID string) error
}

type Service interface {
	// RegisterPushToken stores a device push token for the user. An existing
	// device on the same platform is updated in place so a reinstall does not
	// leave stale endpoints behind.
	RegisterPushToken(ctx context.Context, userID string, req domain.RegisterPushTokenRequest) (*domain.Device, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Unregister(ctx context.Context, deviceID string) error
}

type service struct {
	repo deviceStore
}

func NewService(repo deviceStore) Service {
	return &service{repo: repo}
}

func (s *service) RegisterPushToken(ctx context.Context, userID string, req domain.RegisterPushTokenRequest) (*domain.Device, error) {
	existing, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		d := &existing[i]
		if d.Platform == req.Platform {
			if err := s.repo.Update(ctx, d.DeviceID, map[string]interface{}{"push_token": req.PushToken}); err != nil {
				return nil, err
			}
			d.PushToken = &req.PushToken
			return d, nil
		}
	}
	now := time.Now().UTC()
	d := &domain.Device{
		DeviceID:  id.New(),
		UserID:    userID,
		PushToken: &req.PushToken,
		Platform:  req.Platform,
		Enable:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) ListByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Unregister(ctx context.Context, deviceID string) error {
	return s.repo.SoftDelete(ctx, deviceID)
}
