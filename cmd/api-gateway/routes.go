package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/migration-estimator-api/internal/handler"
	"github.com/noah-isme/migration-estimator-api/internal/middleware"
	"github.com/noah-isme/migration-estimator-api/internal/rbac"
	"github.com/noah-isme/migration-estimator-api/pkg/config"
)

type handlers struct {
	estimates   *handler.EstimateHandler
	submissions *handler.SubmissionHandler
	audit       *handler.AuditHandler
	users       *handler.UserHandler
	reports     *handler.ReportHandler
	recompute   *handler.RecomputeHandler
	metrics     *handler.MetricsHandler
	auth        *handler.AuthHandler
}

type guards struct {
	tokens  middleware.TokenValidator
	actors  middleware.ActorResolver
	limiter middleware.Limiter
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h handlers, g guards) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.AuditContext(), middleware.WithResponseMeta())

	if cfg.Env != config.EnvProduction && h.auth != nil {
		api.POST("/auth/dev-token", h.auth.DevToken)
	}

	// The token in the path is the credential.
	api.GET("/reports/:token", h.reports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(g.tokens, g.actors))

	estimates := secured.Group("/estimates")
	estimates.GET("/addons", h.estimates.Addons)
	estimates.POST("/addons/quote", h.estimates.QuoteAddons)
	estimates.POST("", middleware.RateLimit(g.limiter, "estimate"), h.estimates.Evaluate)

	submissions := secured.Group("/submissions")
	submissions.POST("", h.submissions.Create)
	submissions.GET("", h.submissions.List)
	submissions.GET("/:id", h.submissions.Get)
	submissions.PATCH("/:id/status", h.submissions.TransitionStatus)
	submissions.POST("/:id/comments", h.submissions.AppendComment)
	submissions.POST("/:id/recompute", h.submissions.Recompute)
	submissions.GET("/:id/audit", h.submissions.AuditTrail)
	submissions.POST("/:id/report", h.reports.Generate)

	// Per-entity reads authorize in the service so refusals are written to the trail.
	audit := secured.Group("/audit")
	audit.GET("/:entity/:id", h.audit.Trail)
	audit.GET("/:entity/:id/verify", h.audit.Verify)
	auditLog := audit.Group("", middleware.RequireCapability(rbac.ActionViewAuditLog))
	auditLog.GET("", h.audit.Search)
	auditLog.GET("/stats", h.audit.Stats)
	auditLog.GET("/export", h.audit.Export)

	users := secured.Group("/users")
	users.GET("/me", h.users.Me)
	users.GET("/:id", h.users.Get)
	users.GET("", middleware.RequireCapability(rbac.ActionManageUsers), h.users.List)
	users.POST("", middleware.RequireCapability(rbac.ActionManageUsers), h.users.Create)
	users.PUT("/:id", middleware.RequireCapability(rbac.ActionManageUsers), h.users.Update)
	users.DELETE("/:id", middleware.RequireCapability(rbac.ActionManageUsers), h.users.Deactivate)

	admin := secured.Group("/admin", middleware.RequireCapability(rbac.ActionRecomputeEstimate))
	admin.POST("/recompute", h.recompute.Enqueue)
	admin.GET("/metrics", h.metrics.Summary)
}
