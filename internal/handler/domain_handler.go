package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type domainRequest struct {
	Domain string `json:"domain"`
}

func (a *API) CheckDomain(c *gin.Context) {
	result, err := a.domains.Check(c.Query("domain"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetDomain 绑定或清除自定义域名，返回需要配置的 TXT 记录
func (a *API) SetDomain(c *gin.Context) {
	var payload domainRequest
	if !bindJSON(c, &payload, "invalid domain payload") {
		return
	}
	setting, err := a.domains.Set(currentUserID(c), c.Param("slug"), payload.Domain)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}

func (a *API) VerifyDomain(c *gin.Context) {
	result, err := a.domains.Verify(c.Request.Context(), currentUserID(c), c.Param("slug"))
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
