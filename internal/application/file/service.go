package file

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/medremind-api/internal/domain"
	"github.com/medremind-api/internal/pkg/id"
)

type blobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type fileStore interface {
	Put(ctx context.Context, f *domain.File) error
	Get(ctx context.Context, fileID string) (*domain.File, error)
	SoftDelete(ctx context.Context, fileID string) error
}

type medicineStore interface {
	Get(ctx context.Context, medicineID string) (*domain.Medicine, error)
	Update(ctx context.Context, medicineID string, updates map[string]interface{}) error
}

type UploadInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
	OwnerID     string
	MedicineID  *string // links the upload to a medicine as its prescription
}

type Service interface {
	Upload(ctx context.Context, input UploadInput) (*domain.File, error)
	Download(ctx context.Context, fileID, requesterID string, isAdmin bool) (io.ReadCloser, *domain.File, error)
	Delete(ctx context.Context, fileID, requesterID string, isAdmin bool) error
}

type service struct {
	blobs     blobStore
	fileRepo  fileStore
	medicines medicineStore
}

func NewService(blobs blobStore, fileRepo fileStore, medicines medicineStore) Service {
	return &service{blobs: blobs, fileRepo: fileRepo, medicines: medicines}
}

func (s *service) Upload(ctx context.Context, input UploadInput) (*domain.File, error) {
	if input.MedicineID != nil {
		m, err := s.medicines.Get(ctx, *input.MedicineID)
		if err != nil {
			return nil, err
		}
		if m.UserID != input.OwnerID {
			return nil, fmt.Errorf("medicine belongs to another user: %w", domain.ErrForbidden)
		}
	}
	safeName := sanitizeFilename(input.Filename)
	key := fmt.Sprintf("prescriptions/%s/%s", input.OwnerID, safeName)
	if _, err := s.blobs.Upload(ctx, key, input.Reader, input.ContentType); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	f := &domain.File{
		FileID:      id.New(),
		UserID:      input.OwnerID,
		MedicineID:  input.MedicineID,
		Name:        safeName,
		S3Key:       key,
		ContentType: input.ContentType,
		SizeBytes:   input.Size,
		Enable:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.fileRepo.Put(ctx, f); err != nil {
		return nil, err
	}
	if input.MedicineID != nil {
		if err := s.medicines.Update(ctx, *input.MedicineID, map[string]interface{}{"prescription_file_id": f.FileID}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (s *service) Download(ctx context.Context, fileID, requesterID string, isAdmin bool) (io.ReadCloser, *domain.File, error) {
	f, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if !f.Enable {
		return nil, nil, fmt.Errorf("file not found: %w", domain.ErrNotFound)
	}
	if f.UserID != requesterID && !isAdmin {
		return nil, nil, fmt.Errorf("access denied: %w", domain.ErrForbidden)
	}
	rc, err := s.blobs.Download(ctx, f.S3Key)
	if err != nil {
		return nil, nil, err
	}
	return rc, f, nil
}

func (s *service) Delete(ctx context.Context, fileID, requesterID string, isAdmin bool) error {
	f, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if !f.Enable {
		return fmt.Errorf("file not found: %w", domain.ErrNotFound)
	}
	if f.UserID != requesterID && !isAdmin {
		return fmt.Errorf("access denied: %w", domain.ErrForbidden)
	}
	if err := s.blobs.Delete(ctx, f.S3Key); err != nil {
		return err
	}
	return s.fileRepo.SoftDelete(ctx, fileID)
}

// sanitizeFilename strips directory components and keeps only safe characters
// (alphanumeric, dot, dash, underscore) to prevent path traversal in S3 keys.
func sanitizeFilename(name string) string {
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if result := b.String(); result != "" && result != "." {
		return result
	}
	return "_"
}
