package service

import (
	"errors"
	"fmt"

	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/db"
)

var (
	ErrSiteNotFound = errors.New("site not found")
	// ErrNotAuthorized 调用者不是资源所有者
	ErrNotAuthorized = access.ErrForbidden
	// ErrConflict 与 *ConflictError 配合 errors.Is 使用
	ErrConflict = errors.New("version conflict")
)

// ConflictError reports a write whose expected version no longer matches the
// stored one. Nothing was written.
type ConflictError struct {
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: expected version %d, current version %d", e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func authorize(policy access.Policy, actorID uint, site *db.Site) error {
	if err := policy.Authorize(actorID, site.OwnerID); err != nil {
		return fmt.Errorf("site %s: %w", site.Slug, err)
	}
	return nil
}

func actorRef(actorID uint) *uint {
	if actorID == 0 {
		return nil
	}
	id := actorID
	return &id
}
