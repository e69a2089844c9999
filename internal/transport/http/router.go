package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/earningsdesk/transcript-pipeline/internal/transport/http/handler"
	"github.com/earningsdesk/transcript-pipeline/internal/transport/http/middleware"
)

func NewRouter(
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	equityHandler *handler.EquityHandler,
	groupHandler *handler.GroupHandler,
	scheduleHandler *handler.ScheduleHandler,
	forceHandler *handler.ForceHandler,
	jwtKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Public auth routes
	r.POST("/auth/magic-link", authHandler.RequestMagicLink)
	r.GET("/auth/verify", authHandler.Verify)

	authMW := middleware.Auth(jwtKey)
	admin := r.Group("/", authMW)

	equities := admin.Group("/equities")
	equities.POST("", equityHandler.Create)
	equities.GET("", equityHandler.List)
	equities.POST("/:id/watchlist", equityHandler.AddToWatchlist)
	equities.DELETE("/:id/watchlist", equityHandler.RemoveFromWatchlist)
	equities.GET("/:id/schedule", scheduleHandler.GetByEquityQuarter)

	admin.GET("/watchlist", equityHandler.ListWatchlist)

	groups := admin.Group("/groups")
	groups.POST("", groupHandler.Create)
	groups.GET("", groupHandler.List)
	groups.GET("/:id", groupHandler.GetByID)
	groups.PATCH("/:id/active", groupHandler.SetActive)
	groups.GET("/:id/members", groupHandler.ListMembers)
	groups.POST("/:id/members", groupHandler.AddMember)
	groups.DELETE("/:id/members/:equity_id", groupHandler.RemoveMember)
	groups.POST("/:id/research", forceHandler.Research)

	admin.POST("/transcripts/:id/analyze", forceHandler.Analyze)

	return r
}
