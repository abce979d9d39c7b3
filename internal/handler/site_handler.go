package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/service"
)

type slugChangeRequest struct {
	Slug string `json:"slug"`
}

func sitePayload(site *db.Site) gin.H {
	return gin.H{
		"id":           site.ID,
		"ownerId":      site.OwnerID,
		"name":         site.Name,
		"slug":         site.Slug,
		"title":        site.Title,
		"bio":          site.Bio,
		"customDomain": site.CustomDomain,
		"domainStatus": site.DomainStatus,
	}
}

// GetSite resolves a slug, following retired slugs to the current one.
func (a *API) GetSite(c *gin.Context) {
	res, err := a.sites.Resolve(service.NormalizeSlug(c.Param("slug")))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"site":          sitePayload(res.Site),
		"redirect":      res.Redirect,
		"canonicalSlug": res.CanonicalSlug,
	})
}

// CheckSlug 检查 slug 是否可用
func (a *API) CheckSlug(c *gin.Context) {
	result, err := a.sites.CheckSlug(c.Query("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ChangeSlug 修改站点 slug，旧 slug 保留为别名
func (a *API) ChangeSlug(c *gin.Context) {
	var payload slugChangeRequest
	if !bindJSON(c, &payload, "slug is required") {
		return
	}
	change, err := a.sites.ChangeSlug(currentUserID(c), c.Param("slug"), payload.Slug)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

func (a *API) GetSiteSettings(c *gin.Context) {
	settings, err := a.sites.GetSettings(c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (a *API) UpdateSiteSettings(c *gin.Context) {
	var payload service.SiteSettingsInput
	if !bindJSON(c, &payload, "invalid settings payload") {
		return
	}
	settings, err := a.sites.UpdateSettings(currentUserID(c), c.Param("slug"), payload)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// ListMySites 返回当前用户拥有的站点
func (a *API) ListMySites(c *gin.Context) {
	sites, err := a.sites.ListByOwner(currentUserID(c))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	items := make([]gin.H, 0, len(sites))
	for i := range sites {
		items = append(items, sitePayload(&sites[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sites": items})
}

// ownsSite reports whether the logged in user owns slug's site.
func (a *API) ownsSite(c *gin.Context, slug string) bool {
	userID := currentUserID(c)
	if userID == 0 {
		return false
	}
	site, err := a.sites.GetBySlug(slug)
	if err != nil {
		return false
	}
	return site.OwnerID == userID
}
