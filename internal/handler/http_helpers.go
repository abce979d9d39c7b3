package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondCode(c, http.StatusBadRequest, "invalid_input", message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// respondServiceError maps service errors onto status codes and stable
// error codes. Unknown errors are logged and reported as 500.
func (a *API) respondServiceError(c *gin.Context, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":           err.Error(),
			"code":            "conflict",
			"expectedVersion": conflict.Expected,
			"currentVersion":  conflict.Current,
		})
	case errors.Is(err, service.ErrNotAuthorized):
		if currentUserID(c) == 0 {
			respondCode(c, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		respondCode(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		respondCode(c, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, service.ErrSiteNotFound):
		respondCode(c, http.StatusNotFound, "site_not_found", err.Error())
	case errors.Is(err, service.ErrPageNotFound):
		respondCode(c, http.StatusNotFound, "page_not_found", err.Error())
	case errors.Is(err, service.ErrPostNotFound):
		respondCode(c, http.StatusNotFound, "post_not_found", err.Error())
	case errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrSocialLinkNotFound),
		errors.Is(err, service.ErrImageNotFound),
		errors.Is(err, service.ErrUserNotFound):
		respondCode(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrSlugTaken),
		errors.Is(err, service.ErrPostSlugTaken),
		errors.Is(err, service.ErrDomainInUse),
		errors.Is(err, service.ErrUsernameTaken):
		respondCode(c, http.StatusConflict, "taken", err.Error())
	case errors.Is(err, service.ErrImageTooLarge):
		respondCode(c, http.StatusRequestEntityTooLarge, "too_large", err.Error())
	case errors.Is(err, service.ErrPageKeyMissing),
		errors.Is(err, service.ErrSlugInvalid),
		errors.Is(err, service.ErrSlugReserved),
		errors.Is(err, service.ErrPostTitleMissing),
		errors.Is(err, service.ErrPostIDMissing),
		errors.Is(err, service.ErrProfileInvalidInput),
		errors.Is(err, service.ErrDomainInvalid),
		errors.Is(err, service.ErrDomainNotSet),
		errors.Is(err, service.ErrUsernameInvalid),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrImageUnsupported):
		respondCode(c, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		a.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		respondCode(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
