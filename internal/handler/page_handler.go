package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/db"
	"github.com/pagesmith/internal/service"
)

type pageUpsertRequest struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

func pageRecords(pages []db.Page) []service.PageRecord {
	items := make([]service.PageRecord, 0, len(pages))
	for i := range pages {
		items = append(items, service.NewPageRecord(&pages[i]))
	}
	return items
}

// GetPage returns the current record of a page.
func (a *API) GetPage(c *gin.Context) {
	page, err := a.pages.GetByKey(c.Request.Context(), c.Param("slug"), c.Param("key"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": service.NewPageRecord(page)})
}

// UpsertPage is the conditional write behind the editor's save loop.
func (a *API) UpsertPage(c *gin.Context) {
	var payload pageUpsertRequest
	if !bindJSON(c, &payload, "invalid page payload") {
		return
	}

	result, err := a.pages.Upsert(c.Request.Context(), service.UpsertPageInput{
		SiteSlug:        c.Param("slug"),
		Key:             c.Param("key"),
		Title:           payload.Title,
		Content:         payload.Content,
		ExpectedVersion: payload.ExpectedVersion,
		ActorID:         currentUserID(c),
	})
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) ListPages(c *gin.Context) {
	pages, err := a.pages.ListBySite(c.Request.Context(), c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pageRecords(pages)})
}

// ListPageRevisions 返回页面的历史版本，最新的在前
func (a *API) ListPageRevisions(c *gin.Context) {
	revisions, err := a.pages.ListRevisions(c.Request.Context(), c.Param("slug"), c.Param("key"), parseIntQuery(c, "limit", 0))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(revisions))
	for _, rev := range revisions {
		items = append(items, gin.H{
			"version":      rev.Version,
			"title":        rev.Title,
			"content":      rev.Content,
			"contentHash":  rev.ContentHash,
			"lastEditedBy": rev.EditedBy,
			"createdAt":    rev.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"revisions": items})
}
