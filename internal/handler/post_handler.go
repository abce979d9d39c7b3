package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/service"
)

type postRequest struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Description string     `json:"description"`
	Published   *bool      `json:"published"`
	PublishedAt *time.Time `json:"publishedAt"`
}

func (p postRequest) toInput() service.PostInput {
	return service.PostInput{
		Slug:        p.Slug,
		Title:       p.Title,
		Content:     p.Content,
		Description: p.Description,
		Published:   p.Published,
		PublishedAt: p.PublishedAt,
	}
}

type publishRequest struct {
	Published *bool `json:"published"`
}

func postPayload(post db.Post) gin.H {
	return gin.H{
		"id":          post.UniqueID,
		"slug":        post.Slug,
		"title":       post.Title,
		"content":     post.Content,
		"description": post.Description,
		"published":   post.Published,
		"publishedAt": post.PublishedAt,
		"createdAt":   post.CreatedAt,
		"updatedAt":   post.UpdatedAt,
	}
}

// ListPosts 列出站点文章，站点所有者可以看到草稿
func (a *API) ListPosts(c *gin.Context) {
	slug := c.Param("slug")
	owner := a.ownsSite(c, slug)

	result, err := a.posts.List(slug, service.PostFilter{
		Search:        c.Query("search"),
		Status:        c.Query("status"),
		IncludeDrafts: owner,
		Page:          parseIntQuery(c, "page", 1),
		PerPage:       parseIntQuery(c, "perPage", 10),
	})
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(result.Posts))
	for _, post := range result.Posts {
		if !owner {
			post = service.PublicCopy(post)
		}
		items = append(items, postPayload(post))
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":          items,
		"total":          result.Total,
		"publishedCount": result.PublishedCount,
		"draftCount":     result.DraftCount,
		"totalPages":     result.TotalPages,
		"page":           result.Page,
		"perPage":        result.PerPage,
	})
}

// GetPost 获取单篇文章，未发布的文章只对所有者可见
func (a *API) GetPost(c *gin.Context) {
	slug := c.Param("slug")
	owner := a.ownsSite(c, slug)

	post, err := a.posts.GetByUniqueID(slug, c.Param("uniqueId"), owner)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	if !owner {
		*post = service.PublicCopy(*post)
	}
	c.JSON(http.StatusOK, gin.H{"post": postPayload(*post)})
}

// CreatePost 创建新文章并分配唯一 ID
func (a *API) CreatePost(c *gin.Context) {
	var payload postRequest
	if !bindJSON(c, &payload, "invalid post payload") {
		return
	}
	post, err := a.posts.UpsertByUniqueID(currentUserID(c), c.Param("slug"), service.NewPostUniqueID(), payload.toInput())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": postPayload(*post)})
}

// SavePost 按唯一 ID 创建或更新文章
func (a *API) SavePost(c *gin.Context) {
	var payload postRequest
	if !bindJSON(c, &payload, "invalid post payload") {
		return
	}
	post, err := a.posts.UpsertByUniqueID(currentUserID(c), c.Param("slug"), c.Param("uniqueId"), payload.toInput())
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": postPayload(*post)})
}

func (a *API) PublishPost(c *gin.Context) {
	var payload publishRequest
	if !bindJSON(c, &payload, "published is required") {
		return
	}
	published := true
	if payload.Published != nil {
		published = *payload.Published
	}
	post, err := a.posts.SetPublished(currentUserID(c), c.Param("slug"), c.Param("uniqueId"), published)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": postPayload(*post)})
}

func (a *API) DeletePost(c *gin.Context) {
	if err := a.posts.Delete(currentUserID(c), c.Param("slug"), c.Param("uniqueId")); err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
