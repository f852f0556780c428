package services

import (
	"github.com/yungbote/atelier-backend/internal/clients/gcp"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// RefcountService is the only path allowed to retire blobs. Counter rows
// live in the space store and move inside the caller's transaction; the
// blob-store delete at zero is best effort, because an orphaned blob costs
// storage while a wrong counter costs correctness.
type RefcountService struct {
	log   *logger.Logger
	refs  repos.ImageRefRepo
	blobs gcp.BlobStore
}

func NewRefcountService(log *logger.Logger, refs repos.ImageRefRepo, blobs gcp.BlobStore) *RefcountService {
	return &RefcountService{
		log:   log.With("service", "RefcountService"),
		refs:  refs,
		blobs: blobs,
	}
}

// Acquire increments the counter for each key, once per occurrence.
func (s *RefcountService) Acquire(dbc dbctx.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.refs.Increment(dbc, key); err != nil {
			return err
		}
	}
	return nil
}

// Release decrements each key and deletes the blob for any key that reached
// zero. The ImageRef row is removed even when the blob delete fails.
func (s *RefcountService) Release(dbc dbctx.Context, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		remaining, err := s.refs.Decrement(dbc, key)
		if err != nil {
			return err
		}
		if remaining > 0 {
			continue
		}
		if err := s.blobs.Delete(dbc.Ctx, key); err != nil {
			s.log.Warn("Blob delete failed, leaving orphan", "image_key", key, "error", err)
		}
	}
	return nil
}
