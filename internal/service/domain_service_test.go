package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagesmith/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	txt   map[string][]string
	cname map[string]string
	hosts map[string][]string
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if records, ok := f.txt[name]; ok {
		return records, nil
	}
	return nil, errors.New("no such host")
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	if target, ok := f.cname[host]; ok {
		return target, nil
	}
	return "", errors.New("no such host")
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f.hosts[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeDomain(" HTTPS://Example.com/ "))
	assert.Equal(t, "example.com", NormalizeDomain("example.com."))
}

func TestDomainSetAndCheck(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	other := seedUser(t, gdb, "other")
	seedSite(t, gdb, owner, "alice")
	seedSite(t, gdb, other, "bobby")
	svc := NewDomainService(gdb, &fakeResolver{}, "sites.example.net")

	avail, err := svc.Check("alice.dev")
	require.NoError(t, err)
	assert.True(t, avail.Available)

	setting, err := svc.Set(owner.ID, "alice", "https://Alice.dev/")
	require.NoError(t, err)
	require.NotNil(t, setting.CustomDomain)
	assert.Equal(t, "alice.dev", *setting.CustomDomain)
	assert.Equal(t, db.DomainStatusPendingDNS, setting.Status)
	assert.NotEmpty(t, setting.Token)
	assert.Equal(t, "_ps-site-verification.alice.dev", setting.RecordName)

	again, err := svc.Set(owner.ID, "alice", "www.alice.dev")
	require.NoError(t, err)
	assert.Equal(t, setting.Token, again.Token, "token survives domain changes")

	avail, err = svc.Check("www.alice.dev")
	require.NoError(t, err)
	assert.False(t, avail.Available)

	_, err = svc.Set(other.ID, "bobby", "www.alice.dev")
	assert.ErrorIs(t, err, ErrDomainInUse)
	_, err = svc.Set(other.ID, "alice", "evil.dev")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = svc.Set(owner.ID, "alice", "bad domain!")
	assert.ErrorIs(t, err, ErrDomainInvalid)

	cleared, err := svc.Set(owner.ID, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, cleared.CustomDomain)
	assert.Equal(t, db.DomainStatusNone, cleared.Status)

	var site db.Site
	require.NoError(t, gdb.Where("slug = ?", "alice").First(&site).Error)
	assert.Nil(t, site.CustomDomain)
	assert.Empty(t, site.DomainVerificationToken)
}

func TestDomainVerify(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	seedSite(t, gdb, owner, "alice")
	resolver := &fakeResolver{txt: map[string][]string{}, cname: map[string]string{}, hosts: map[string][]string{}}
	svc := NewDomainService(gdb, resolver, "Sites.Example.NET.")
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := svc.Verify(ctx, owner.ID, "alice")
	assert.ErrorIs(t, err, ErrDomainNotSet)

	setting, err := svc.Set(owner.ID, "alice", "alice.dev")
	require.NoError(t, err)

	failed, err := svc.Verify(ctx, owner.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.DomainStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "TXT")

	resolver.txt["_ps-site-verification.alice.dev"] = []string{"unrelated", setting.Token}
	failed, err = svc.Verify(ctx, owner.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.DomainStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "sites.example.net")

	resolver.cname["www.alice.dev"] = "sites.example.net."
	verified, err := svc.Verify(ctx, owner.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.DomainStatusVerified, verified.Status)
	require.NotNil(t, verified.VerifiedAt)
	assert.True(t, verified.VerifiedAt.Equal(fixed))

	var site db.Site
	require.NoError(t, gdb.Where("slug = ?", "alice").First(&site).Error)
	assert.Equal(t, db.DomainStatusVerified, site.DomainStatus)
	assert.Empty(t, site.LastDomainError)

	delete(resolver.cname, "www.alice.dev")
	resolver.hosts["alice.dev"] = []string{"203.0.113.7"}
	apex, err := svc.Verify(ctx, owner.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, db.DomainStatusVerified, apex.Status)
}
