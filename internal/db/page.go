package db

import "gorm.io/gorm"

// Page is a versioned editable document of a site, addressed by Key
// (for example "about" or "home").
//
// Version starts at 1 on the first write and only moves when ContentHash
// changes. ContentHash always fingerprints Content as of the last write.
type Page struct {
	gorm.Model
	SiteID       uint   `gorm:"uniqueIndex:idx_pages_site_key;not null"`
	Site         Site   `json:"-"`
	Key          string `gorm:"uniqueIndex:idx_pages_site_key;not null"`
	Title        string `gorm:"not null;default:''"`
	Content      string `gorm:"type:text"`
	Version      int64  `gorm:"not null;default:0"`
	ContentHash  string `gorm:"not null;default:''"`
	LastEditedBy *uint
}
