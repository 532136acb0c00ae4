package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ip-workflow-service/internal/http/middleware"
)

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, health HealthFunc, env string, log zerolog.Logger) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID(log))
	router.Use(middleware.AccessLog(log))
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/submission-types", handler.listSubmissionTypes)
		protected.POST("/submission-types", handler.createSubmissionType)
		protected.GET("/submission-types/:id", handler.getSubmissionType)
		protected.PUT("/submission-types/:id", handler.updateSubmissionType)
		protected.GET("/submission-types/:id/stages", handler.listStages)
		protected.POST("/submission-types/:id/stages", handler.createStage)
		protected.GET("/submission-types/:id/requirements", handler.listRequirements)
		protected.POST("/submission-types/:id/requirements", handler.createRequirement)
		protected.PUT("/stages/:id", handler.updateStage)
		protected.DELETE("/stages/:id", handler.deleteStage)
		protected.GET("/stages/:id/requirements", handler.stageRequirements)
		protected.POST("/stages/:id/requirements", handler.attachRequirement)

		protected.POST("/submissions", handler.createSubmission)
		protected.GET("/submissions", handler.listSubmissions)
		protected.GET("/submissions/:id", handler.getSubmission)
		protected.DELETE("/submissions/:id", handler.discardDraft)
		protected.POST("/submissions/:id/submit", handler.submitSubmission)
		protected.POST("/submissions/:id/actions", handler.processSubmission)

		protected.POST("/files", handler.uploadFile)
		protected.GET("/files/*ref", handler.downloadFile)
		protected.POST("/submissions/:id/documents", handler.attachDocument)
		protected.GET("/submissions/:id/documents", handler.listDocuments)
		protected.PUT("/submission-documents/:id/status", handler.setDocumentStatus)

		protected.GET("/submissions/:id/history", handler.submissionHistory)
		protected.GET("/submissions/:id/timeline", handler.submissionTimeline)
		protected.GET("/submissions/:id/statistics", handler.submissionStatistics)
		protected.GET("/dashboard/status-distribution", handler.statusDistribution)
		protected.GET("/dashboard/recent-activity", handler.recentActivity)
	}

	return router
}
