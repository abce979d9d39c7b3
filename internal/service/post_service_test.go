package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", Slugify("  Hello, World!  "))
	assert.Equal(t, "", Slugify("!!!"))
	assert.Equal(t, "go-1-24-notes", Slugify("Go 1.24 notes"))
}

func TestPostUpsertByUniqueID(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	stranger := seedUser(t, gdb, "stranger")
	seedSite(t, gdb, owner, "alice")
	svc := NewPostService(gdb)

	created, err := svc.UpsertByUniqueID(owner.ID, "alice", "post-1", PostInput{Title: "First Post", Content: "<p>one</p>"})
	require.NoError(t, err)
	assert.Equal(t, "first-post", created.Slug)
	assert.False(t, created.Published)

	updated, err := svc.UpsertByUniqueID(owner.ID, "alice", "post-1", PostInput{Title: "First Post", Slug: "renamed", Content: "<p>two</p>", Published: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "renamed", updated.Slug)
	assert.True(t, updated.Published)
	require.NotNil(t, updated.PublishedAt)

	_, err = svc.UpsertByUniqueID(owner.ID, "alice", "post-2", PostInput{Title: "Other", Slug: "renamed"})
	assert.ErrorIs(t, err, ErrPostSlugTaken)

	_, err = svc.UpsertByUniqueID(stranger.ID, "alice", "post-1", PostInput{Title: "Hijack"})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = svc.UpsertByUniqueID(owner.ID, "alice", "post-3", PostInput{Title: "   "})
	assert.ErrorIs(t, err, ErrPostTitleMissing)

	_, err = svc.UpsertByUniqueID(owner.ID, "alice", " ", PostInput{Title: "x"})
	assert.ErrorIs(t, err, ErrPostIDMissing)
}

func TestPostPublicReadsHideDrafts(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	seedSite(t, gdb, owner, "alice")
	svc := NewPostService(gdb)

	_, err := svc.UpsertByUniqueID(owner.ID, "alice", "draft", PostInput{Title: "Draft"})
	require.NoError(t, err)
	_, err = svc.UpsertByUniqueID(owner.ID, "alice", "live", PostInput{Title: "Live", Published: boolPtr(true)})
	require.NoError(t, err)

	public, err := svc.List("alice", PostFilter{})
	require.NoError(t, err)
	require.Len(t, public.Posts, 1)
	assert.Equal(t, "live", public.Posts[0].UniqueID)

	all, err := svc.List("alice", PostFilter{IncludeDrafts: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
	assert.EqualValues(t, 1, all.PublishedCount)
	assert.EqualValues(t, 1, all.DraftCount)

	drafts, err := svc.List("alice", PostFilter{IncludeDrafts: true, Status: "draft"})
	require.NoError(t, err)
	require.Len(t, drafts.Posts, 1)
	assert.Equal(t, "draft", drafts.Posts[0].UniqueID)

	_, err = svc.GetByUniqueID("alice", "draft", false)
	assert.ErrorIs(t, err, ErrPostNotFound)
	_, err = svc.GetByUniqueID("alice", "draft", true)
	assert.NoError(t, err)

	bySlug, err := svc.GetBySlug("alice", "live", false)
	require.NoError(t, err)
	assert.Equal(t, "live", bySlug.UniqueID)
}

func TestPostSetPublishedAndDelete(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	seedSite(t, gdb, owner, "alice")
	svc := NewPostService(gdb)

	_, err := svc.UpsertByUniqueID(owner.ID, "alice", "p", PostInput{Title: "P"})
	require.NoError(t, err)

	published, err := svc.SetPublished(owner.ID, "alice", "p", true)
	require.NoError(t, err)
	assert.True(t, published.Published)
	assert.NotNil(t, published.PublishedAt)

	unpublished, err := svc.SetPublished(owner.ID, "alice", "p", false)
	require.NoError(t, err)
	assert.False(t, unpublished.Published)
	assert.Nil(t, unpublished.PublishedAt)

	_, err = svc.SetPublished(owner.ID, "alice", "missing", true)
	assert.ErrorIs(t, err, ErrPostNotFound)

	require.NoError(t, svc.Delete(owner.ID, "alice", "p"))
	require.NoError(t, svc.Delete(owner.ID, "alice", "p"))
	_, err = svc.GetByUniqueID("alice", "p", true)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestPostUpsertBySlugKeepsImportDates(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	seedSite(t, gdb, owner, "alice")
	svc := NewPostService(gdb)

	when := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	first, err := svc.UpsertBySlug(owner.ID, "alice", PostInput{Title: "Old Post", Published: boolPtr(true), PublishedAt: &when, CreatedAt: &when})
	require.NoError(t, err)
	assert.Equal(t, "old-post", first.Slug)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, first.PublishedAt.Equal(when))

	again, err := svc.UpsertBySlug(owner.ID, "alice", PostInput{Title: "Old Post", Content: "new body"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "new body", again.Content)
	assert.True(t, again.Published)
}

func TestPublicCopySanitizes(t *testing.T) {
	gdb := setupServiceTestDB(t)
	owner := seedUser(t, gdb, "owner")
	seedSite(t, gdb, owner, "alice")
	svc := NewPostService(gdb)

	post, err := svc.UpsertByUniqueID(owner.ID, "alice", "x", PostInput{Title: "X", Content: `<p>ok</p><script>bad()</script>`})
	require.NoError(t, err)

	public := PublicCopy(*post)
	assert.Equal(t, "<p>ok</p>", public.Content)
	assert.Contains(t, post.Content, "script", "stored content is untouched")
}
