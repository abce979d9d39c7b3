package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound 在指定的作品不存在时返回
	ErrProjectNotFound = errors.New("project not found")
	// ErrSocialLinkNotFound 在指定的社交链接不存在时返回
	ErrSocialLinkNotFound = errors.New("social link not found")
	// ErrProfileInvalidInput 在输入数据不完整时返回
	ErrProfileInvalidInput = errors.New("invalid profile input")
)

// ProfileService 负责维护站点首页展示的个人资料、作品与社交链接

type ProfileService struct {
	db     *gorm.DB
	policy access.Policy
}

// NewProfileService 构造 ProfileService
func NewProfileService(gdb *gorm.DB) *ProfileService {
	return &ProfileService{db: gdb}
}

// Profile 汇总站点首页所需的资料
type Profile struct {
	SiteSlug    string          `json:"siteSlug"`
	Title       string          `json:"title"`
	Bio         string          `json:"bio"`
	Projects    []db.Project    `json:"projects"`
	SocialLinks []db.SocialLink `json:"socialLinks"`
}

// ProfileInput 中为 nil 的字段保持不变
type ProfileInput struct {
	Title *string
	Bio   *string
}

// ProjectInput 描述创建或更新作品时可设置的字段
type ProjectInput struct {
	Title       string
	Description string
	URL         string
	SortOrder   *int
}

// SocialLinkInput 描述新增社交链接时可设置的字段
type SocialLinkInput struct {
	Platform  string
	URL       string
	SortOrder *int
}

// Get 返回站点资料，作品和社交链接按排序值升序
func (s *ProfileService) Get(siteSlug string) (*Profile, error) {
	site, err := findSiteBySlug(s.db, siteSlug)
	if err != nil {
		return nil, err
	}

	profile := &Profile{SiteSlug: site.Slug, Title: site.Title, Bio: site.Bio}
	if err := s.db.Where("site_id = ?", site.ID).Order("sort_order ASC, id ASC").Find(&profile.Projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if err := s.db.Where("site_id = ?", site.ID).Order("sort_order ASC, id ASC").Find(&profile.SocialLinks).Error; err != nil {
		return nil, fmt.Errorf("list social links: %w", err)
	}
	return profile, nil
}

// Update 修改站点标题与简介
func (s *ProfileService) Update(actorID uint, siteSlug string, input ProfileInput) (*Profile, error) {
	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Bio != nil {
		updates["bio"] = strings.TrimSpace(*input.Bio)
	}
	if len(updates) > 0 {
		if err := s.db.Model(site).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return s.Get(site.Slug)
}

// CreateProject 新建作品，未指定排序时自动追加到末尾
func (s *ProfileService) CreateProject(actorID uint, siteSlug string, input ProjectInput) (*db.Project, error) {
	if err := validateProjectInput(input); err != nil {
		return nil, err
	}
	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return nil, err
	}

	sortValue, err := s.resolveSort(&db.Project{}, site.ID, input.SortOrder)
	if err != nil {
		return nil, err
	}

	project := db.Project{
		SiteID:      site.ID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		URL:         strings.TrimSpace(input.URL),
		SortOrder:   sortValue,
	}
	if err := s.db.Create(&project).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &project, nil
}

// UpdateProject 更新指定作品
func (s *ProfileService) UpdateProject(actorID uint, siteSlug string, id uint, input ProjectInput) (*db.Project, error) {
	if err := validateProjectInput(input); err != nil {
		return nil, err
	}
	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return nil, err
	}

	var project db.Project
	if err := s.db.Where("site_id = ?", site.ID).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("find project: %w", err)
	}

	project.Title = strings.TrimSpace(input.Title)
	project.Description = strings.TrimSpace(input.Description)
	project.URL = strings.TrimSpace(input.URL)
	if input.SortOrder != nil {
		project.SortOrder = *input.SortOrder
	}

	if err := s.db.Save(&project).Error; err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return &project, nil
}

// DeleteProject 删除指定作品
func (s *ProfileService) DeleteProject(actorID uint, siteSlug string, id uint) error {
	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return err
	}
	res := s.db.Where("site_id = ?", site.ID).Delete(&db.Project{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// AddSocialLink 新增社交链接
func (s *ProfileService) AddSocialLink(actorID uint, siteSlug string, input SocialLinkInput) (*db.SocialLink, error) {
	platform := strings.TrimSpace(input.Platform)
	link := strings.TrimSpace(input.URL)
	if platform == "" {
		return nil, fmt.Errorf("%w: platform is required", ErrProfileInvalidInput)
	}
	if !isHTTPURL(link) {
		return nil, fmt.Errorf("%w: url must be an http(s) link", ErrProfileInvalidInput)
	}

	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return nil, err
	}
	sortValue, err := s.resolveSort(&db.SocialLink{}, site.ID, input.SortOrder)
	if err != nil {
		return nil, err
	}

	item := db.SocialLink{SiteID: site.ID, Platform: platform, URL: link, SortOrder: sortValue}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create social link: %w", err)
	}
	return &item, nil
}

// DeleteSocialLink 删除指定社交链接
func (s *ProfileService) DeleteSocialLink(actorID uint, siteSlug string, id uint) error {
	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return err
	}
	res := s.db.Where("site_id = ?", site.ID).Delete(&db.SocialLink{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete social link: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSocialLinkNotFound
	}
	return nil
}

// ReorderSocialLinks 按给定顺序重排排序字段
// 传入的 IDs 会被依次赋值 0,1,2...，未包含的条目保持原排序
func (s *ProfileService) ReorderSocialLinks(actorID uint, siteSlug string, ids []uint) error {
	site, err := s.ownedSite(actorID, siteSlug)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for index, id := range ids {
			if err := tx.Model(&db.SocialLink{}).
				Where("id = ? AND site_id = ?", id, site.ID).
				Update("sort_order", index).Error; err != nil {
				return fmt.Errorf("reorder social links: %w", err)
			}
		}
		return nil
	})
}

func (s *ProfileService) ownedSite(actorID uint, siteSlug string) (*db.Site, error) {
	site, err := findSiteBySlug(s.db, siteSlug)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.policy, actorID, site); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *ProfileService) resolveSort(model any, siteID uint, sortPtr *int) (int, error) {
	if sortPtr != nil {
		return *sortPtr, nil
	}

	var maxSort int
	if err := s.db.Model(model).Where("site_id = ?", siteID).Select("COALESCE(MAX(sort_order), -1)").Scan(&maxSort).Error; err != nil {
		return 0, fmt.Errorf("resolve sort order: %w", err)
	}
	return maxSort + 1, nil
}

func validateProjectInput(input ProjectInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrProfileInvalidInput)
	}
	if link := strings.TrimSpace(input.URL); link != "" && !isHTTPURL(link) {
		return fmt.Errorf("%w: url must be an http(s) link", ErrProfileInvalidInput)
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
