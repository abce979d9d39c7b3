package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/db"
)

func imagePayload(img *db.Image) gin.H {
	return gin.H{
		"id":       img.UUID,
		"url":      "/api/images/" + img.UUID,
		"filename": img.Filename,
		"mimeType": img.MimeType,
		"size":     img.Size,
		"width":    img.Width,
		"height":   img.Height,
	}
}

// UploadImage 处理图片上传请求，表单字段为 image
func (a *API) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		respondCode(c, http.StatusBadRequest, "invalid_input", "image file is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		respondCode(c, http.StatusBadRequest, "invalid_input", "cannot read upload")
		return
	}
	defer src.Close()

	img, err := a.images.Upload(c.Request.Context(), currentUserID(c), file.Filename, src)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"image": imagePayload(img)})
}

// ServeImage streams the stored bytes of an image.
func (a *API) ServeImage(c *gin.Context) {
	img, body, err := a.images.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, img.Size, img.MimeType, body, map[string]string{
		"Cache-Control":  "public, max-age=31536000, immutable",
		"X-Image-Width":  strconv.Itoa(img.Width),
		"X-Image-Height": strconv.Itoa(img.Height),
	})
}

func (a *API) ListImages(c *gin.Context) {
	images, err := a.images.ListByOwner(c.Request.Context(), currentUserID(c))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	items := make([]gin.H, 0, len(images))
	for i := range images {
		items = append(items, imagePayload(&images[i]))
	}
	c.JSON(http.StatusOK, gin.H{"images": items})
}

func (a *API) DeleteImage(c *gin.Context) {
	if err := a.images.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
