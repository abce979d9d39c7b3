package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/db"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func userPayload(user *db.User) gin.H {
	return gin.H{"id": user.ID, "username": user.Username}
}

// Register 创建账号及其默认站点，并直接登录
func (a *API) Register(c *gin.Context) {
	var payload credentialsRequest
	if !bindJSON(c, &payload, "username and password are required") {
		return
	}

	user, site, err := a.users.Register(payload.Username, payload.Password)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	if !a.startSession(c, user) {
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user": userPayload(user),
		"site": sitePayload(site),
	})
}

// Login 校验凭据并写入会话
func (a *API) Login(c *gin.Context) {
	var payload credentialsRequest
	if !bindJSON(c, &payload, "username and password are required") {
		return
	}

	user, err := a.users.Authenticate(payload.Username, payload.Password)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}
	if !a.startSession(c, user) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userPayload(user)})
}

// Logout 清除会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		a.log.Warn().Err(err).Msg("clear session")
	}
	c.Status(http.StatusNoContent)
}

// Session reports who is logged in.
func (a *API) Session(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	user, err := a.users.Get(userID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": userPayload(user)})
}

func (a *API) startSession(c *gin.Context, user *db.User) bool {
	session := sessions.Default(c)
	session.Set(sessionUserIDKey, user.ID)
	session.Set(sessionUsernameKey, user.Username)
	if err := session.Save(); err != nil {
		a.log.Error().Err(err).Msg("save session")
		respondCode(c, http.StatusInternalServerError, "internal", "failed to save session")
		return false
	}
	return true
}
