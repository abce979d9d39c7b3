package db

import (
	"time"

	"gorm.io/gorm"
)

// Domain verification states stored on Site.DomainStatus.
const (
	DomainStatusNone       = "none"
	DomainStatusPendingDNS = "pending_dns"
	DomainStatusVerified   = "verified"
	DomainStatusFailed     = "failed"
)

// Site is a tenant: one owner, one public slug, and the profile, SEO,
// appearance and domain settings shown on the public site.
type Site struct {
	gorm.Model
	OwnerID uint   `gorm:"index;not null"`
	Owner   User   `gorm:"foreignKey:OwnerID"`
	Name    string `gorm:"not null"`
	Slug    string `gorm:"uniqueIndex;not null"`

	Title string
	Bio   string `gorm:"type:text"`

	SEOTitle       string
	SEODescription string `gorm:"type:text"`
	OGImageID      *string

	ThemeMode         string
	PrimaryColor      string
	BackgroundColor   string
	BackgroundImageID *string
	FontBody          string
	FontHeading       string

	CustomDomain            *string `gorm:"uniqueIndex"`
	DomainStatus            string  `gorm:"default:none"`
	DomainVerificationToken string
	DomainVerifiedAt        *time.Time
	LastDomainError         string
}

// SiteAlias remembers a slug a site used to have so old links can redirect.
type SiteAlias struct {
	gorm.Model
	SiteID  uint   `gorm:"index;not null"`
	OldSlug string `gorm:"uniqueIndex;not null"`
}

// TableName 指定自定义表名。
func (SiteAlias) TableName() string {
	return "site_aliases"
}
