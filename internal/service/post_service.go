package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/content"
	"github.com/pagesmith/internal/db"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound     = errors.New("post not found")
	ErrPostTitleMissing = errors.New("post title is required")
	ErrPostSlugTaken    = errors.New("post slug already in use")
	ErrPostIDMissing    = errors.New("post unique id is required")
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// PostService wraps post related database operations.
type PostService struct {
	db     *gorm.DB
	policy access.Policy
}

// PostFilter describes filters for listing posts.
type PostFilter struct {
	Search        string
	Status        string
	IncludeDrafts bool
	Page          int
	PerPage       int
}

// PostListResult aggregates paginated list data and counters.
type PostListResult struct {
	Posts          []db.Post `json:"posts"`
	Total          int64     `json:"total"`
	PublishedCount int64     `json:"publishedCount"`
	DraftCount     int64     `json:"draftCount"`
	TotalPages     int       `json:"totalPages"`
	Page           int       `json:"page"`
	PerPage        int       `json:"perPage"`
}

// PostInput represents fields accepted when creating or updating a post.
// Published nil keeps the current state.
type PostInput struct {
	Slug        string
	Title       string
	Content     string
	Description string
	Published   *bool
	PublishedAt *time.Time
	CreatedAt   *time.Time
}

// NewPostService creates a PostService instance.
func NewPostService(gdb *gorm.DB) *PostService {
	return &PostService{db: gdb}
}

// NewPostUniqueID returns a fresh stable identifier for a post.
func NewPostUniqueID() string {
	return "post-" + uuid.NewString()
}

// Slugify 将标题转换为 URL 友好的 slug
func Slugify(title string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	return slug
}

// List returns a page of posts of a site. Drafts are only listed when the
// filter asks for them.
func (s *PostService) List(siteSlug string, filter PostFilter) (*PostListResult, error) {
	site, err := findSiteBySlug(s.db, siteSlug)
	if err != nil {
		return nil, err
	}

	result := &PostListResult{Page: filter.Page, PerPage: filter.PerPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 10
	}

	base := s.db.Model(&db.Post{}).Where("site_id = ?", site.ID)
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		base = base.Where("title LIKE ? OR description LIKE ?", like, like)
	}
	if !filter.IncludeDrafts {
		base = base.Where("published = ?", true)
	}

	base = base.Session(&gorm.Session{})

	listQuery := base
	switch strings.ToLower(strings.TrimSpace(filter.Status)) {
	case "published":
		listQuery = base.Where("published = ?", true).Session(&gorm.Session{})
	case "draft":
		listQuery = base.Where("published = ?", false).Session(&gorm.Session{})
	}

	if err := listQuery.Count(&result.Total).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	offset := (result.Page - 1) * result.PerPage
	if err := listQuery.
		Order("published_at desc, created_at desc, id desc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&result.Posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	if err := base.Where("published = ?", true).Count(&result.PublishedCount).Error; err != nil {
		return nil, fmt.Errorf("count published posts: %w", err)
	}
	if err := base.Where("published = ?", false).Count(&result.DraftCount).Error; err != nil {
		return nil, fmt.Errorf("count draft posts: %w", err)
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}
	return result, nil
}

// GetByUniqueID fetches one post. Drafts are reported as missing unless
// includeDrafts is set.
func (s *PostService) GetByUniqueID(siteSlug, uniqueID string, includeDrafts bool) (*db.Post, error) {
	site, err := findSiteBySlug(s.db, siteSlug)
	if err != nil {
		return nil, err
	}
	return findPost(s.db, site.ID, "unique_id = ?", uniqueID, includeDrafts)
}

// GetBySlug fetches one post by its URL slug.
func (s *PostService) GetBySlug(siteSlug, slug string, includeDrafts bool) (*db.Post, error) {
	site, err := findSiteBySlug(s.db, siteSlug)
	if err != nil {
		return nil, err
	}
	return findPost(s.db, site.ID, "slug = ?", slug, includeDrafts)
}

// UpsertByUniqueID creates or updates the post identified by uniqueID.
func (s *PostService) UpsertByUniqueID(actorID uint, siteSlug, uniqueID string, input PostInput) (*db.Post, error) {
	uniqueID = strings.TrimSpace(uniqueID)
	if uniqueID == "" {
		return nil, ErrPostIDMissing
	}
	return s.upsert(actorID, siteSlug, "unique_id = ?", uniqueID, input)
}

// UpsertBySlug creates or updates the post living at slug. Imports use it so
// re-running an import updates rather than duplicates.
func (s *PostService) UpsertBySlug(actorID uint, siteSlug string, input PostInput) (*db.Post, error) {
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(input.Title)
	}
	input.Slug = slug
	return s.upsert(actorID, siteSlug, "slug = ?", slug, input)
}

func (s *PostService) upsert(actorID uint, siteSlug, column string, value string, input PostInput) (*db.Post, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrPostTitleMissing
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		slug = strings.ToLower(strings.TrimPrefix(NewPostUniqueID(), "post-"))[:8]
	}

	var saved db.Post
	err := s.db.Transaction(func(tx *gorm.DB) error {
		site, err := findSiteBySlug(tx, siteSlug)
		if err != nil {
			return err
		}
		if err := authorize(s.policy, actorID, site); err != nil {
			return err
		}

		var post db.Post
		err = tx.Where("site_id = ?", site.ID).Where(column, value).First(&post).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			post = db.Post{SiteID: site.ID, UniqueID: NewPostUniqueID()}
			if column == "unique_id = ?" {
				post.UniqueID = value
			}
			if input.CreatedAt != nil {
				post.CreatedAt = *input.CreatedAt
			}
		case err != nil:
			return fmt.Errorf("find post: %w", err)
		}

		var clash int64
		if err := tx.Model(&db.Post{}).
			Where("site_id = ? AND slug = ? AND id <> ?", site.ID, slug, post.ID).
			Count(&clash).Error; err != nil {
			return fmt.Errorf("check post slug: %w", err)
		}
		if clash > 0 {
			return ErrPostSlugTaken
		}

		post.Slug = slug
		post.Title = title
		post.Content = input.Content
		post.Description = strings.TrimSpace(input.Description)
		if input.Published != nil {
			applyPublished(&post, *input.Published, input.PublishedAt)
		}

		if err := tx.Save(&post).Error; err != nil {
			return fmt.Errorf("save post: %w", err)
		}
		saved = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// SetPublished toggles the public visibility of a post.
func (s *PostService) SetPublished(actorID uint, siteSlug, uniqueID string, published bool) (*db.Post, error) {
	var post *db.Post
	err := s.db.Transaction(func(tx *gorm.DB) error {
		site, err := findSiteBySlug(tx, siteSlug)
		if err != nil {
			return err
		}
		if err := authorize(s.policy, actorID, site); err != nil {
			return err
		}
		post, err = findPost(tx, site.ID, "unique_id = ?", uniqueID, true)
		if err != nil {
			return err
		}
		applyPublished(post, published, nil)
		if err := tx.Model(post).Select("published", "published_at").Updates(post).Error; err != nil {
			return fmt.Errorf("publish post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Delete removes a post. Deleting a missing post is not an error.
func (s *PostService) Delete(actorID uint, siteSlug, uniqueID string) error {
	site, err := findSiteBySlug(s.db, siteSlug)
	if err != nil {
		return err
	}
	if err := authorize(s.policy, actorID, site); err != nil {
		return err
	}
	if err := s.db.Where("site_id = ? AND unique_id = ?", site.ID, uniqueID).Delete(&db.Post{}).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// PublicCopy returns a copy of post safe to render on a public page.
func PublicCopy(post db.Post) db.Post {
	post.Content = content.Sanitize(post.Content)
	post.Description = content.Sanitize(post.Description)
	return post
}

func applyPublished(post *db.Post, published bool, at *time.Time) {
	post.Published = published
	if !published {
		post.PublishedAt = nil
		return
	}
	switch {
	case at != nil:
		stamp := *at
		post.PublishedAt = &stamp
	case post.PublishedAt == nil:
		now := time.Now()
		post.PublishedAt = &now
	}
}

func findPost(gdb *gorm.DB, siteID uint, condition, value string, includeDrafts bool) (*db.Post, error) {
	query := gdb.Where("site_id = ?", siteID).Where(condition, strings.TrimSpace(value))
	if !includeDrafts {
		query = query.Where("published = ?", true)
	}
	var post db.Post
	if err := query.First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &post, nil
}
