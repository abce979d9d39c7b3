package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pagesmith/internal/handler"
	"github.com/pagesmith/internal/logging"
	"github.com/rs/zerolog"
)

const sessionName = "pagesmith_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", handler.Ping)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.Health)

		auth := apiGroup.Group("/auth")
		{
			auth.POST("/register", api.Register)
			auth.POST("/login", api.Login)
			auth.POST("/logout", api.Logout)
			auth.GET("/session", api.Session)
		}

		apiGroup.GET("/slugs/check", api.CheckSlug)
		apiGroup.GET("/domains/check", api.CheckDomain)

		me := apiGroup.Group("/me", handler.AuthRequired())
		{
			me.GET("/sites", api.ListMySites)
		}

		images := apiGroup.Group("/images")
		{
			images.GET("/:id", api.ServeImage)

			owned := images.Group("", handler.AuthRequired())
			owned.POST("", api.UploadImage)
			owned.GET("", api.ListImages)
			owned.DELETE("/:id", api.DeleteImage)
		}

		site := apiGroup.Group("/sites/:slug")
		{
			site.GET("", api.GetSite)
			site.POST("/slug", api.ChangeSlug)
			site.GET("/settings", api.GetSiteSettings)
			site.PUT("/settings", api.UpdateSiteSettings)

			site.PUT("/domain", api.SetDomain)
			site.POST("/domain/verify", api.VerifyDomain)

			site.GET("/pages", api.ListPages)
			site.GET("/pages/:key", api.GetPage)
			site.PUT("/pages/:key", api.UpsertPage)
			site.GET("/pages/:key/revisions", api.ListPageRevisions)
			site.GET("/pages/:key/live", api.LivePage)

			site.GET("/posts", api.ListPosts)
			site.POST("/posts", api.CreatePost)
			site.GET("/posts/:uniqueId", api.GetPost)
			site.PUT("/posts/:uniqueId", api.SavePost)
			site.POST("/posts/:uniqueId/publish", api.PublishPost)
			site.DELETE("/posts/:uniqueId", api.DeletePost)

			site.GET("/profile", api.GetProfile)
			site.PUT("/profile", api.UpdateProfile)
			site.POST("/profile/projects", api.CreateProject)
			site.PUT("/profile/projects/:id", api.UpdateProject)
			site.DELETE("/profile/projects/:id", api.DeleteProject)
			site.POST("/profile/social-links", api.AddSocialLink)
			site.PUT("/profile/social-links/order", api.ReorderSocialLinks)
			site.DELETE("/profile/social-links/:id", api.DeleteSocialLink)
		}
	}

	return r
}
