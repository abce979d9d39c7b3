package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/storage"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"
)

var (
	ErrImageNotFound    = errors.New("image not found")
	ErrImageTooLarge    = errors.New("image exceeds upload limit")
	ErrImageUnsupported = errors.New("only png, jpeg, gif and webp images are accepted")
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageService stores uploaded images and their metadata.
type ImageService struct {
	db       *gorm.DB
	store    storage.BlobStore
	maxBytes int64
	policy   access.Policy
	log      zerolog.Logger
}

// NewImageService wires an ImageService to a blob store.
func NewImageService(gdb *gorm.DB, store storage.BlobStore, maxBytes int64, log zerolog.Logger) *ImageService {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &ImageService{db: gdb, store: store, maxBytes: maxBytes, log: log}
}

// Upload validates an image, stores its bytes and records its metadata.
func (s *ImageService) Upload(ctx context.Context, ownerID uint, filename string, r io.Reader) (*db.Image, error) {
	if ownerID == 0 {
		return nil, ErrNotAuthorized
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrImageTooLarge
	}

	mimeType := http.DetectContentType(data)
	ext, ok := imageExtensions[mimeType]
	if !ok {
		return nil, ErrImageUnsupported
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnsupported, err)
	}

	id := uuid.NewString()
	key := "images/" + id + ext
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	img := db.Image{
		UUID:       id,
		OwnerID:    ownerID,
		Filename:   strings.TrimSpace(filename),
		MimeType:   mimeType,
		Size:       int64(len(data)),
		Width:      cfg.Width,
		Height:     cfg.Height,
		StorageKey: key,
	}
	if err := s.db.WithContext(ctx).Create(&img).Error; err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Warn().Err(derr).Str("key", key).Msg("remove orphaned image")
		}
		return nil, fmt.Errorf("record image: %w", err)
	}
	return &img, nil
}

// Get returns image metadata by its public id.
func (s *ImageService) Get(ctx context.Context, id string) (*db.Image, error) {
	var img db.Image
	if err := s.db.WithContext(ctx).Where("uuid = ?", strings.TrimSpace(id)).First(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("find image: %w", err)
	}
	return &img, nil
}

// Open returns the metadata and bytes of an image. Callers close the reader.
func (s *ImageService) Open(ctx context.Context, id string) (*db.Image, io.ReadCloser, error) {
	img, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, img.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrImageNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return img, rc, nil
}

// ListByOwner returns the images of ownerID, newest first.
func (s *ImageService) ListByOwner(ctx context.Context, ownerID uint) ([]db.Image, error) {
	var images []db.Image
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id DESC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// Delete removes an image owned by actorID.
func (s *ImageService) Delete(ctx context.Context, actorID uint, id string) error {
	img, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(actorID, img.OwnerID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Unscoped().Delete(img).Error; err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if err := s.store.Delete(ctx, img.StorageKey); err != nil {
		s.log.Warn().Err(err).Str("key", img.StorageKey).Msg("remove image bytes")
	}
	return nil
}
