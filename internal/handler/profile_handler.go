package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/service"
)

type profileRequest struct {
	Title *string `json:"title"`
	Bio   *string `json:"bio"`
}

type projectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	SortOrder   *int   `json:"sortOrder"`
}

func (p projectRequest) toInput() service.ProjectInput {
	return service.ProjectInput{
		Title:       p.Title,
		Description: p.Description,
		URL:         p.URL,
		SortOrder:   p.SortOrder,
	}
}

type socialLinkRequest struct {
	Platform  string `json:"platform"`
	URL       string `json:"url"`
	SortOrder *int   `json:"sortOrder"`
}

type socialLinkReorderRequest struct {
	IDs []uint `json:"ids"`
}

func projectPayload(project db.Project) gin.H {
	return gin.H{
		"id":          project.ID,
		"title":       project.Title,
		"description": project.Description,
		"url":         project.URL,
		"sortOrder":   project.SortOrder,
	}
}

func socialLinkPayload(link db.SocialLink) gin.H {
	return gin.H{
		"id":        link.ID,
		"platform":  link.Platform,
		"url":       link.URL,
		"sortOrder": link.SortOrder,
	}
}

func profilePayload(profile *service.Profile) gin.H {
	projects := make([]gin.H, 0, len(profile.Projects))
	for _, project := range profile.Projects {
		projects = append(projects, projectPayload(project))
	}
	links := make([]gin.H, 0, len(profile.SocialLinks))
	for _, link := range profile.SocialLinks {
		links = append(links, socialLinkPayload(link))
	}
	return gin.H{
		"siteSlug":    profile.SiteSlug,
		"title":       profile.Title,
		"bio":         profile.Bio,
		"projects":    projects,
		"socialLinks": links,
	}
}

// GetProfile 返回站点首页资料
func (a *API) GetProfile(c *gin.Context) {
	profile, err := a.profiles.Get(c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profilePayload(profile)})
}

func (a *API) UpdateProfile(c *gin.Context) {
	var payload profileRequest
	if !bindJSON(c, &payload, "invalid profile payload") {
		return
	}
	profile, err := a.profiles.Update(currentUserID(c), c.Param("slug"), service.ProfileInput{
		Title: payload.Title,
		Bio:   payload.Bio,
	})
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profilePayload(profile)})
}

// CreateProject 新增作品
func (a *API) CreateProject(c *gin.Context) {
	var payload projectRequest
	if !bindJSON(c, &payload, "invalid project payload") {
		return
	}
	project, err := a.profiles.CreateProject(currentUserID(c), c.Param("slug"), payload.toInput())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": projectPayload(*project)})
}

// UpdateProject 更新作品
func (a *API) UpdateProject(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondCode(c, http.StatusBadRequest, "invalid_input", "invalid project id")
		return
	}
	var payload projectRequest
	if !bindJSON(c, &payload, "invalid project payload") {
		return
	}
	project, err := a.profiles.UpdateProject(currentUserID(c), c.Param("slug"), id, payload.toInput())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": projectPayload(*project)})
}

// DeleteProject 删除作品
func (a *API) DeleteProject(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondCode(c, http.StatusBadRequest, "invalid_input", "invalid project id")
		return
	}
	if err := a.profiles.DeleteProject(currentUserID(c), c.Param("slug"), id); err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) AddSocialLink(c *gin.Context) {
	var payload socialLinkRequest
	if !bindJSON(c, &payload, "invalid social link payload") {
		return
	}
	link, err := a.profiles.AddSocialLink(currentUserID(c), c.Param("slug"), service.SocialLinkInput{
		Platform:  payload.Platform,
		URL:       payload.URL,
		SortOrder: payload.SortOrder,
	})
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"socialLink": socialLinkPayload(*link)})
}

func (a *API) DeleteSocialLink(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondCode(c, http.StatusBadRequest, "invalid_input", "invalid social link id")
		return
	}
	if err := a.profiles.DeleteSocialLink(currentUserID(c), c.Param("slug"), id); err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderSocialLinks 按 ids 的顺序重排社交链接
func (a *API) ReorderSocialLinks(c *gin.Context) {
	var payload socialLinkReorderRequest
	if !bindJSON(c, &payload, "ids are required") {
		return
	}
	if err := a.profiles.ReorderSocialLinks(currentUserID(c), c.Param("slug"), payload.IDs); err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
