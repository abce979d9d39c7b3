package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/db"
	"gorm.io/gorm"
)

var (
	ErrSlugInvalid  = errors.New("invalid slug format")
	ErrSlugReserved = errors.New("slug is reserved")
	ErrSlugTaken    = errors.New("slug already taken")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,30}$`)

// 这些路径被站点路由占用，不能作为站点 slug
var reservedSlugs = map[string]struct{}{
	"about": {}, "blog": {}, "app": {}, "sign-in": {}, "sign-up": {},
	"onboarding": {}, "api": {}, "rss": {}, "rss.xml": {}, "sitemap": {},
	"sitemap.xml": {}, "robots.txt": {}, "favicon.ico": {}, "live": {},
}

// HomeSite configures auto-provisioning of the platform's own site. It only
// ever applies to Slug.
type HomeSite struct {
	Enabled       bool
	Slug          string
	OwnerUsername string
	OwnerPassword string
}

func (h HomeSite) applies(slug string) bool {
	return h.Enabled && h.Slug != "" && slug == h.Slug
}

// SiteService manages sites, their slugs and their settings.
type SiteService struct {
	db     *gorm.DB
	policy access.Policy
}

func NewSiteService(gdb *gorm.DB) *SiteService {
	return &SiteService{db: gdb}
}

// SiteResolution is the outcome of resolving a possibly retired slug.
type SiteResolution struct {
	Site          *db.Site
	Redirect      bool
	CanonicalSlug string
}

// SlugAvailability explains whether a slug can be claimed.
type SlugAvailability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// SlugChange is the result of ChangeSlug.
type SlugChange struct {
	Slug    string `json:"slug"`
	Changed bool   `json:"changed"`
}

// SiteSettings is the editable surface of a site.
type SiteSettings struct {
	Name              string  `json:"name"`
	Slug              string  `json:"slug"`
	Title             string  `json:"title"`
	Bio               string  `json:"bio"`
	SEOTitle          string  `json:"seoTitle"`
	SEODescription    string  `json:"seoDescription"`
	OGImageID         *string `json:"ogImageId,omitempty"`
	ThemeMode         string  `json:"themeMode"`
	PrimaryColor      string  `json:"primaryColor"`
	BackgroundColor   string  `json:"backgroundColor"`
	BackgroundImageID *string `json:"backgroundImageId,omitempty"`
	FontBody          string  `json:"fontBody"`
	FontHeading       string  `json:"fontHeading"`
	CustomDomain      *string `json:"customDomain,omitempty"`
	DomainStatus      string  `json:"domainStatus"`
}

// SiteSettingsInput 中为 nil 的字段保持不变
type SiteSettingsInput struct {
	Name              *string `json:"name"`
	Title             *string `json:"title"`
	Bio               *string `json:"bio"`
	SEOTitle          *string `json:"seoTitle"`
	SEODescription    *string `json:"seoDescription"`
	OGImageID         *string `json:"ogImageId"`
	ThemeMode         *string `json:"themeMode"`
	PrimaryColor      *string `json:"primaryColor"`
	BackgroundColor   *string `json:"backgroundColor"`
	BackgroundImageID *string `json:"backgroundImageId"`
	FontBody          *string `json:"fontBody"`
	FontHeading       *string `json:"fontHeading"`
}

// NormalizeSlug trims and lowercases a requested slug.
func NormalizeSlug(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func validateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return ErrSlugInvalid
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return ErrSlugReserved
	}
	return nil
}

// GetBySlug fetches a site by its current slug.
func (s *SiteService) GetBySlug(slug string) (*db.Site, error) {
	return findSiteBySlug(s.db, slug)
}

// Resolve finds a site by its current slug or, failing that, by a retired one.
func (s *SiteService) Resolve(slug string) (*SiteResolution, error) {
	site, err := findSiteBySlug(s.db, slug)
	if err == nil {
		return &SiteResolution{Site: site, CanonicalSlug: site.Slug}, nil
	}
	if !errors.Is(err, ErrSiteNotFound) {
		return nil, err
	}

	var alias db.SiteAlias
	if err := s.db.Where("old_slug = ?", slug).First(&alias).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("find site alias: %w", err)
	}

	var target db.Site
	if err := s.db.First(&target, alias.SiteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("find aliased site: %w", err)
	}
	return &SiteResolution{Site: &target, Redirect: true, CanonicalSlug: target.Slug}, nil
}

// ListByOwner returns the sites owned by ownerID, oldest first.
func (s *SiteService) ListByOwner(ownerID uint) ([]db.Site, error) {
	var sites []db.Site
	if err := s.db.Where("owner_id = ?", ownerID).Order("id ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

// CheckSlug reports whether raw could be claimed as a new slug.
func (s *SiteService) CheckSlug(raw string) (SlugAvailability, error) {
	slug := NormalizeSlug(raw)
	switch err := validateSlug(slug); {
	case errors.Is(err, ErrSlugInvalid):
		return SlugAvailability{Reason: "Invalid format. Use 3-30 chars: a-z, 0-9, -"}, nil
	case errors.Is(err, ErrSlugReserved):
		return SlugAvailability{Reason: "Reserved URL"}, nil
	}

	taken, err := slugInUse(s.db, slug)
	if err != nil {
		return SlugAvailability{}, err
	}
	if taken != "" {
		return SlugAvailability{Reason: taken}, nil
	}
	return SlugAvailability{Available: true}, nil
}

// ChangeSlug moves a site to a new slug and keeps the old one as an alias.
func (s *SiteService) ChangeSlug(actorID uint, currentSlug, newSlug string) (*SlugChange, error) {
	normalized := NormalizeSlug(newSlug)
	if err := validateSlug(normalized); err != nil {
		return nil, err
	}

	var change SlugChange
	err := s.db.Transaction(func(tx *gorm.DB) error {
		site, err := findSiteBySlug(tx, currentSlug)
		if err != nil {
			return err
		}
		if err := authorize(s.policy, actorID, site); err != nil {
			return err
		}
		if normalized == site.Slug {
			change = SlugChange{Slug: site.Slug}
			return nil
		}

		var count int64
		if err := tx.Model(&db.Site{}).Where("slug = ?", normalized).Count(&count).Error; err != nil {
			return fmt.Errorf("check slug: %w", err)
		}
		if count > 0 {
			return ErrSlugTaken
		}

		// 本站的旧别名可以收回，其他站点的别名不行
		var alias db.SiteAlias
		err = tx.Where("old_slug = ?", normalized).First(&alias).Error
		switch {
		case err == nil && alias.SiteID != site.ID:
			return ErrSlugTaken
		case err == nil:
			if err := tx.Unscoped().Delete(&alias).Error; err != nil {
				return fmt.Errorf("reclaim alias: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find alias: %w", err)
		}

		if err := tx.Create(&db.SiteAlias{SiteID: site.ID, OldSlug: site.Slug}).Error; err != nil {
			return fmt.Errorf("create alias: %w", err)
		}
		if err := tx.Model(site).Update("slug", normalized).Error; err != nil {
			return fmt.Errorf("update slug: %w", err)
		}
		change = SlugChange{Slug: normalized, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// GetSettings returns the editable settings of a site.
func (s *SiteService) GetSettings(slug string) (*SiteSettings, error) {
	site, err := findSiteBySlug(s.db, slug)
	if err != nil {
		return nil, err
	}
	settings := settingsOf(site)
	return &settings, nil
}

// UpdateSettings applies the non-nil fields of input.
func (s *SiteService) UpdateSettings(actorID uint, slug string, input SiteSettingsInput) (*SiteSettings, error) {
	site, err := findSiteBySlug(s.db, slug)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.policy, actorID, site); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	setString := func(column string, value *string) {
		if value != nil {
			updates[column] = strings.TrimSpace(*value)
		}
	}
	setString("name", input.Name)
	setString("title", input.Title)
	setString("bio", input.Bio)
	setString("seo_title", input.SEOTitle)
	setString("seo_description", input.SEODescription)
	setString("theme_mode", input.ThemeMode)
	setString("primary_color", input.PrimaryColor)
	setString("background_color", input.BackgroundColor)
	setString("font_body", input.FontBody)
	setString("font_heading", input.FontHeading)
	if input.OGImageID != nil {
		updates["og_image_id"] = optionalString(*input.OGImageID)
	}
	if input.BackgroundImageID != nil {
		updates["background_image_id"] = optionalString(*input.BackgroundImageID)
	}

	if len(updates) > 0 {
		if err := s.db.Model(site).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update site settings: %w", err)
		}
	}

	return s.GetSettings(site.Slug)
}

// CreateDefaultSite gives a freshly registered user a site named after them.
func CreateDefaultSite(tx *gorm.DB, user *db.User) (*db.Site, error) {
	slug, err := pickAvailableSlug(tx, NormalizeSlug(user.Username))
	if err != nil {
		return nil, err
	}
	site := db.Site{
		OwnerID:      user.ID,
		Name:         fmt.Sprintf("%s's Site", user.Username),
		Slug:         slug,
		DomainStatus: db.DomainStatusNone,
	}
	if err := tx.Create(&site).Error; err != nil {
		return nil, fmt.Errorf("create default site: %w", err)
	}
	return &site, nil
}

// ensureHomeSite provisions the home site and its owner when missing.
func ensureHomeSite(tx *gorm.DB, home HomeSite) (*db.Site, error) {
	site, err := findSiteBySlug(tx, home.Slug)
	if err == nil || !errors.Is(err, ErrSiteNotFound) {
		return site, err
	}

	username := strings.TrimSpace(home.OwnerUsername)
	if username == "" {
		username = "admin"
	}

	var owner db.User
	if err := tx.Where("username = ?", username).First(&owner).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find home owner: %w", err)
		}
		created, err := db.EnsureUser(tx, username, home.OwnerPassword)
		if err != nil {
			return nil, fmt.Errorf("create home owner: %w", err)
		}
		if created == nil {
			// 无密码的账号只能被引用，不能登录
			owner = db.User{Username: username}
			if err := tx.Create(&owner).Error; err != nil {
				return nil, fmt.Errorf("create home owner: %w", err)
			}
		} else {
			owner = *created
		}
	}

	created := db.Site{
		OwnerID:      owner.ID,
		Name:         "Homepage",
		Slug:         home.Slug,
		DomainStatus: db.DomainStatusNone,
	}
	if err := tx.Create(&created).Error; err != nil {
		return nil, fmt.Errorf("create home site: %w", err)
	}
	return &created, nil
}

func findSiteBySlug(gdb *gorm.DB, slug string) (*db.Site, error) {
	var site db.Site
	if err := gdb.Where("slug = ?", strings.TrimSpace(slug)).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("find site: %w", err)
	}
	return &site, nil
}

// slugInUse returns a non-empty reason when slug belongs to a site or alias.
func slugInUse(gdb *gorm.DB, slug string) (string, error) {
	var count int64
	if err := gdb.Model(&db.Site{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return "", fmt.Errorf("check slug: %w", err)
	}
	if count > 0 {
		return "Taken", nil
	}
	if err := gdb.Model(&db.SiteAlias{}).Where("old_slug = ?", slug).Count(&count).Error; err != nil {
		return "", fmt.Errorf("check slug alias: %w", err)
	}
	if count > 0 {
		return "Taken (alias)", nil
	}
	return "", nil
}

func pickAvailableSlug(gdb *gorm.DB, base string) (string, error) {
	candidates := make([]string, 0, 6)
	if validateSlug(base) == nil {
		candidates = append(candidates, base)
	}
	if len(base) > 24 {
		base = base[:24]
	}
	if slugPattern.MatchString(base + "-2") {
		for i := 2; i <= 5; i++ {
			candidates = append(candidates, fmt.Sprintf("%s-%d", base, i))
		}
	}

	for _, candidate := range candidates {
		taken, err := slugInUse(gdb, candidate)
		if err != nil {
			return "", err
		}
		if taken == "" {
			return candidate, nil
		}
	}
	return "site-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12], nil
}

func settingsOf(site *db.Site) SiteSettings {
	return SiteSettings{
		Name:              site.Name,
		Slug:              site.Slug,
		Title:             site.Title,
		Bio:               site.Bio,
		SEOTitle:          site.SEOTitle,
		SEODescription:    site.SEODescription,
		OGImageID:         site.OGImageID,
		ThemeMode:         site.ThemeMode,
		PrimaryColor:      site.PrimaryColor,
		BackgroundColor:   site.BackgroundColor,
		BackgroundImageID: site.BackgroundImageID,
		FontBody:          site.FontBody,
		FontHeading:       site.FontHeading,
		CustomDomain:      site.CustomDomain,
		DomainStatus:      site.DomainStatus,
	}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
