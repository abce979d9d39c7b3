package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagesmith/internal/access"
	"github.com/pagesmith/internal/db"
	"gorm.io/gorm"
)

var (
	ErrDomainInvalid = errors.New("invalid domain")
	ErrDomainInUse   = errors.New("domain already in use")
	ErrDomainNotSet  = errors.New("site has no custom domain")
)

// VerificationRecordPrefix is prepended to a domain to name the TXT record
// holding the verification token.
const VerificationRecordPrefix = "_ps-site-verification."

var domainPattern = regexp.MustCompile(`^[a-z0-9.-]+$`)

// Resolver is the subset of *net.Resolver used for verification.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DomainService 管理站点自定义域名的绑定与 DNS 校验
type DomainService struct {
	db          *gorm.DB
	resolver    Resolver
	cnameTarget string
	policy      access.Policy
	now         func() time.Time
}

// NewDomainService builds a DomainService. A nil resolver uses the system one.
func NewDomainService(gdb *gorm.DB, resolver Resolver, cnameTarget string) *DomainService {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &DomainService{
		db:          gdb,
		resolver:    resolver,
		cnameTarget: canonicalHost(cnameTarget),
		now:         time.Now,
	}
}

// DomainAvailability explains whether a domain can be attached.
type DomainAvailability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// DomainSetting is the domain state of a site after Set.
type DomainSetting struct {
	CustomDomain *string `json:"customDomain"`
	Token        string  `json:"token,omitempty"`
	Status       string  `json:"status"`
	RecordName   string  `json:"recordName,omitempty"`
}

// DomainVerification is the outcome of a DNS check.
type DomainVerification struct {
	Domain     string     `json:"domain"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// NormalizeDomain lowercases a domain and strips scheme and trailing
// separators.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimSuffix(d, "/")
	d = strings.TrimSuffix(d, ".")
	return d
}

func validDomain(domain string) bool {
	return len(domain) >= 3 && domainPattern.MatchString(domain)
}

// Check reports whether raw may be attached to a site.
func (s *DomainService) Check(raw string) (DomainAvailability, error) {
	domain := NormalizeDomain(raw)
	if !validDomain(domain) {
		return DomainAvailability{Reason: "Invalid domain"}, nil
	}
	var count int64
	if err := s.db.Model(&db.Site{}).Where("custom_domain = ?", domain).Count(&count).Error; err != nil {
		return DomainAvailability{}, fmt.Errorf("check domain: %w", err)
	}
	if count > 0 {
		return DomainAvailability{Reason: "Domain already in use"}, nil
	}
	return DomainAvailability{Available: true}, nil
}

// Set attaches raw to the site, or detaches the current domain when raw is
// blank. A verification token is issued once and kept across changes.
func (s *DomainService) Set(actorID uint, siteSlug, raw string) (*DomainSetting, error) {
	var setting DomainSetting
	err := s.db.Transaction(func(tx *gorm.DB) error {
		site, err := findSiteBySlug(tx, siteSlug)
		if err != nil {
			return err
		}
		if err := authorize(s.policy, actorID, site); err != nil {
			return err
		}

		if strings.TrimSpace(raw) == "" {
			if err := tx.Model(site).Updates(map[string]any{
				"custom_domain":             nil,
				"domain_status":             db.DomainStatusNone,
				"domain_verification_token": "",
				"domain_verified_at":        nil,
				"last_domain_error":         "",
			}).Error; err != nil {
				return fmt.Errorf("clear domain: %w", err)
			}
			setting = DomainSetting{Status: db.DomainStatusNone}
			return nil
		}

		domain := NormalizeDomain(raw)
		if !validDomain(domain) {
			return ErrDomainInvalid
		}
		var count int64
		if err := tx.Model(&db.Site{}).Where("custom_domain = ? AND id <> ?", domain, site.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check domain: %w", err)
		}
		if count > 0 {
			return ErrDomainInUse
		}

		token := site.DomainVerificationToken
		if token == "" {
			token = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if err := tx.Model(site).Updates(map[string]any{
			"custom_domain":             domain,
			"domain_status":             db.DomainStatusPendingDNS,
			"domain_verification_token": token,
			"domain_verified_at":        nil,
			"last_domain_error":         "",
		}).Error; err != nil {
			return fmt.Errorf("set domain: %w", err)
		}
		setting = DomainSetting{
			CustomDomain: &domain,
			Token:        token,
			Status:       db.DomainStatusPendingDNS,
			RecordName:   VerificationRecordPrefix + domain,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// Verify checks DNS for the site's domain and stores the outcome. The TXT
// token must be published, and either www must CNAME to the configured
// target or the apex must resolve.
func (s *DomainService) Verify(ctx context.Context, actorID uint, siteSlug string) (*DomainVerification, error) {
	site, err := findSiteBySlug(s.db.WithContext(ctx), siteSlug)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.policy, actorID, site); err != nil {
		return nil, err
	}
	if site.CustomDomain == nil || *site.CustomDomain == "" {
		return nil, ErrDomainNotSet
	}
	domain := *site.CustomDomain

	result := DomainVerification{Domain: domain, Status: db.DomainStatusVerified}
	if problem := s.checkDNS(ctx, domain, site.DomainVerificationToken); problem != "" {
		result.Status = db.DomainStatusFailed
		result.Error = problem
	} else {
		now := s.now()
		result.VerifiedAt = &now
	}

	if err := s.db.WithContext(ctx).Model(site).Updates(map[string]any{
		"domain_status":      result.Status,
		"last_domain_error":  result.Error,
		"domain_verified_at": result.VerifiedAt,
	}).Error; err != nil {
		return nil, fmt.Errorf("record domain status: %w", err)
	}
	return &result, nil
}

func (s *DomainService) checkDNS(ctx context.Context, domain, token string) string {
	records, err := s.resolver.LookupTXT(ctx, VerificationRecordPrefix+domain)
	if err != nil {
		return fmt.Sprintf("TXT lookup failed: %v", err)
	}
	found := false
	for _, record := range records {
		if strings.TrimSpace(record) == token {
			found = true
			break
		}
	}
	if !found {
		return "verification TXT record not found"
	}

	if s.cnameTarget != "" {
		if cname, err := s.resolver.LookupCNAME(ctx, "www."+domain); err == nil && canonicalHost(cname) == s.cnameTarget {
			return ""
		}
	}
	if addrs, err := s.resolver.LookupHost(ctx, domain); err == nil && len(addrs) > 0 {
		return ""
	}
	if s.cnameTarget != "" {
		return fmt.Sprintf("point www.%s at %s or add an A record for %s", domain, s.cnameTarget, domain)
	}
	return fmt.Sprintf("no A record found for %s", domain)
}

func canonicalHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}
