package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/contenthash"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/livefeed"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPageNotFound   = errors.New("page not found")
	ErrPageKeyMissing = errors.New("page key is required")
)

const (
	publishTimeout       = 5 * time.Second
	defaultRevisionLimit = 20
	maxRevisionLimit     = 100
)

// errCreateRace 标记并发创建同一页面时被唯一索引拒绝的写入
var errCreateRace = errors.New("page created concurrently")

// PageRecord is the wire form of a page, shared by the HTTP API and the
// live feed.
type PageRecord struct {
	ID           uint      `json:"id"`
	SiteID       uint      `json:"siteId"`
	Key          string    `json:"key"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Version      int64     `json:"version"`
	ContentHash  string    `json:"contentHash"`
	LastEditedBy *uint     `json:"lastEditedBy,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewPageRecord converts a stored page into its wire form.
func NewPageRecord(page *db.Page) PageRecord {
	return PageRecord{
		ID:           page.ID,
		SiteID:       page.SiteID,
		Key:          page.Key,
		Title:        page.Title,
		Content:      page.Content,
		Version:      page.Version,
		ContentHash:  page.ContentHash,
		LastEditedBy: page.LastEditedBy,
		UpdatedAt:    page.UpdatedAt,
	}
}

// UpsertPageInput describes one conditional write. A nil ExpectedVersion
// skips the version check.
type UpsertPageInput struct {
	SiteSlug        string
	Key             string
	Title           string
	Content         string
	ExpectedVersion *int64
	ActorID         uint
}

// UpsertResult reports the stored version after a write. Committed is false
// when the content hash matched and nothing was written.
type UpsertResult struct {
	ID          uint   `json:"id"`
	Version     int64  `json:"version"`
	ContentHash string `json:"contentHash"`
	Committed   bool   `json:"committed"`
}

// PageServiceOptions wires the optional collaborators of PageService.
type PageServiceOptions struct {
	Feed   livefeed.Broker
	Home   HomeSite
	Policy access.Policy
	Logger zerolog.Logger
}

// PageService is the versioned store behind page editing.
type PageService struct {
	db     *gorm.DB
	feed   livefeed.Broker
	home   HomeSite
	policy access.Policy
	log    zerolog.Logger
}

// NewPageService returns a new PageService instance.
func NewPageService(gdb *gorm.DB, opts PageServiceOptions) *PageService {
	return &PageService{
		db:     gdb,
		feed:   opts.Feed,
		home:   opts.Home,
		policy: opts.Policy,
		log:    opts.Logger.With().Str("component", "pages").Logger(),
	}
}

// Upsert creates the page at version 1 or commits version+1 when the content
// hash changed. A stale ExpectedVersion returns *ConflictError and writes
// nothing. An unchanged hash returns the stored version untouched.
func (s *PageService) Upsert(ctx context.Context, input UpsertPageInput) (*UpsertResult, error) {
	key := strings.TrimSpace(input.Key)
	if key == "" {
		return nil, ErrPageKeyMissing
	}
	hash := contenthash.Sum(input.Content)

	var (
		result    UpsertResult
		committed *db.Page
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		site, err := s.siteForWrite(tx, input.SiteSlug)
		if err != nil {
			return err
		}
		if err := authorize(s.policy, input.ActorID, site); err != nil {
			return err
		}

		var page db.Page
		err = tx.Where(&db.Page{SiteID: site.ID, Key: key}).First(&page).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			page = db.Page{
				SiteID:       site.ID,
				Key:          key,
				Title:        input.Title,
				Content:      input.Content,
				Version:      1,
				ContentHash:  hash,
				LastEditedBy: actorRef(input.ActorID),
			}
			if err := tx.Create(&page).Error; err != nil {
				return fmt.Errorf("%w: %v", errCreateRace, err)
			}
			if err := writeRevision(tx, &page); err != nil {
				return err
			}
			committed = &page
			result = UpsertResult{ID: page.ID, Version: page.Version, ContentHash: hash, Committed: true}
			return nil
		}
		if err != nil {
			return fmt.Errorf("find page: %w", err)
		}

		if input.ExpectedVersion != nil && *input.ExpectedVersion != page.Version {
			return &ConflictError{Expected: *input.ExpectedVersion, Current: page.Version}
		}

		if page.ContentHash == hash {
			result = UpsertResult{ID: page.ID, Version: page.Version, ContentHash: page.ContentHash}
			return nil
		}

		now := time.Now()
		next := page.Version + 1
		update := tx.Model(&db.Page{}).
			Where("id = ? AND version = ?", page.ID, page.Version).
			Updates(map[string]any{
				"title":          input.Title,
				"content":        input.Content,
				"version":        next,
				"content_hash":   hash,
				"last_edited_by": actorRef(input.ActorID),
				"updated_at":     now,
			})
		if update.Error != nil {
			return fmt.Errorf("update page: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			current, err := currentVersion(tx, page.ID)
			if err != nil {
				return err
			}
			return &ConflictError{Expected: page.Version, Current: current}
		}

		page.Title = input.Title
		page.Content = input.Content
		page.Version = next
		page.ContentHash = hash
		page.LastEditedBy = actorRef(input.ActorID)
		page.UpdatedAt = now
		if err := writeRevision(tx, &page); err != nil {
			return err
		}
		committed = &page
		result = UpsertResult{ID: page.ID, Version: next, ContentHash: hash, Committed: true}
		return nil
	})
	if errors.Is(err, errCreateRace) {
		return nil, s.resolveCreateRace(ctx, input, key, err)
	}
	if err != nil {
		return nil, err
	}

	if committed != nil {
		s.publish(ctx, committed)
		s.log.Debug().
			Uint("site_id", committed.SiteID).
			Str("key", committed.Key).
			Int64("version", committed.Version).
			Msg("page committed")
	}
	return &result, nil
}

// GetByKey returns the stored page. It never provisions anything.
func (s *PageService) GetByKey(ctx context.Context, siteSlug, key string) (*db.Page, error) {
	gdb := s.db.WithContext(ctx)
	site, err := findSiteBySlug(gdb, siteSlug)
	if err != nil {
		return nil, err
	}
	return findPage(gdb, site.ID, key)
}

// ListBySite returns every page of a site ordered by key.
func (s *PageService) ListBySite(ctx context.Context, siteSlug string) ([]db.Page, error) {
	gdb := s.db.WithContext(ctx)
	site, err := findSiteBySlug(gdb, siteSlug)
	if err != nil {
		return nil, err
	}

	var pages []db.Page
	if err := gdb.Where("site_id = ?", site.ID).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// ListRevisions returns the newest revisions of a page first.
func (s *PageService) ListRevisions(ctx context.Context, siteSlug, key string, limit int) ([]db.PageRevision, error) {
	page, err := s.GetByKey(ctx, siteSlug, key)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRevisionLimit
	}
	if limit > maxRevisionLimit {
		limit = maxRevisionLimit
	}

	var revisions []db.PageRevision
	if err := s.db.WithContext(ctx).
		Where("page_id = ?", page.ID).
		Order("version DESC").
		Limit(limit).
		Find(&revisions).Error; err != nil {
		return nil, fmt.Errorf("list page revisions: %w", err)
	}
	return revisions, nil
}

// Topic returns the live feed topic of a page, resolving the site slug.
func (s *PageService) Topic(ctx context.Context, siteSlug, key string) (string, error) {
	site, err := findSiteBySlug(s.db.WithContext(ctx), siteSlug)
	if err != nil {
		return "", err
	}
	return livefeed.PageTopic(site.ID, strings.TrimSpace(key)), nil
}

func (s *PageService) siteForWrite(tx *gorm.DB, slug string) (*db.Site, error) {
	slug = strings.TrimSpace(slug)
	if s.home.applies(slug) {
		return ensureHomeSite(tx, s.home)
	}
	return findSiteBySlug(tx, slug)
}

// resolveCreateRace turns a rejected insert into a conflict when another
// writer created the page first.
func (s *PageService) resolveCreateRace(ctx context.Context, input UpsertPageInput, key string, cause error) error {
	site, err := findSiteBySlug(s.db.WithContext(ctx), input.SiteSlug)
	if err != nil {
		return fmt.Errorf("create page: %w", cause)
	}
	page, err := findPage(s.db.WithContext(ctx), site.ID, key)
	if err != nil {
		return fmt.Errorf("create page: %w", cause)
	}
	var expected int64
	if input.ExpectedVersion != nil {
		expected = *input.ExpectedVersion
	}
	return &ConflictError{Expected: expected, Current: page.Version}
}

func (s *PageService) publish(ctx context.Context, page *db.Page) {
	if s.feed == nil {
		return
	}
	payload, err := json.Marshal(NewPageRecord(page))
	if err != nil {
		s.log.Error().Err(err).Msg("encode page record")
		return
	}
	// 提交已经落库，请求断开也要推送出去；推送失败只记录日志
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.feed.Publish(ctx, livefeed.PageTopic(page.SiteID, page.Key), payload); err != nil {
		s.log.Warn().Err(err).Str("key", page.Key).Msg("publish page commit")
	}
}

func findPage(gdb *gorm.DB, siteID uint, key string) (*db.Page, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrPageNotFound
	}
	var page db.Page
	if err := gdb.Where(&db.Page{SiteID: siteID, Key: key}).First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("find page: %w", err)
	}
	return &page, nil
}

func currentVersion(tx *gorm.DB, pageID uint) (int64, error) {
	var version int64
	if err := tx.Model(&db.Page{}).Where("id = ?", pageID).Select("version").Scan(&version).Error; err != nil {
		return 0, fmt.Errorf("read page version: %w", err)
	}
	return version, nil
}

func writeRevision(tx *gorm.DB, page *db.Page) error {
	revision := db.PageRevision{
		PageID:      page.ID,
		Version:     page.Version,
		Title:       page.Title,
		Content:     page.Content,
		ContentHash: page.ContentHash,
		EditedBy:    page.LastEditedBy,
	}
	if err := tx.Create(&revision).Error; err != nil {
		return fmt.Errorf("record page revision: %w", err)
	}
	return nil
}
