package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pagesmith/internal/livefeed"
	"github.com/pagesmith/internal/service"
	"github.com/pagesmith/internal/storage"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	sessionUserIDKey   = "user_id"
	sessionUsernameKey = "username"
)

// Deps carries everything the handlers need from the outside.
type Deps struct {
	DB             *gorm.DB
	Feed           livefeed.Broker
	Blobs          storage.BlobStore
	Home           service.HomeSite
	Resolver       service.Resolver
	CNAMETarget    string
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db       *gorm.DB
	users    *service.UserService
	sites    *service.SiteService
	pages    *service.PageService
	posts    *service.PostService
	profiles *service.ProfileService
	domains  *service.DomainService
	images   *service.ImageService
	feed     livefeed.Broker
	log      zerolog.Logger
	upgrader websocket.Upgrader

	livePingInterval time.Duration
}

// NewAPI constructs a handler set with shared services.
func NewAPI(deps Deps) *API {
	log := deps.Logger.With().Str("component", "http").Logger()
	return &API{
		db:    deps.DB,
		users: service.NewUserService(deps.DB),
		sites: service.NewSiteService(deps.DB),
		pages: service.NewPageService(deps.DB, service.PageServiceOptions{
			Feed:   deps.Feed,
			Home:   deps.Home,
			Logger: deps.Logger,
		}),
		posts:    service.NewPostService(deps.DB),
		profiles: service.NewProfileService(deps.DB),
		domains:  service.NewDomainService(deps.DB, deps.Resolver, deps.CNAMETarget),
		images:   service.NewImageService(deps.DB, deps.Blobs, deps.MaxUploadBytes, deps.Logger),
		feed:     deps.Feed,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		livePingInterval: 30 * time.Second,
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Ping is the liveness probe.
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health reports whether the database answers.
func (a *API) Health(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		a.log.Error().Err(err).Msg("health check")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// currentUserID 返回会话中的用户 ID，未登录时为 0
func currentUserID(c *gin.Context) uint {
	switch v := sessions.Default(c).Get(sessionUserIDKey).(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case int64:
		if v > 0 {
			return uint(v)
		}
	case uint64:
		return uint(v)
	}
	return 0
}

// AuthRequired 拒绝没有登录会话的请求
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUserID(c) == 0 {
			respondCode(c, http.StatusUnauthorized, "unauthorized", "login required")
			c.Abort()
			return
		}
		c.Next()
	}
}
