// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/manifest-ingest/internal/api/handlers"
	"github.com/andresuchdata/manifest-ingest/internal/api/middleware"
)

type Services struct {
	Processor handlers.ManifestProcessor
	Runs      handlers.RunStore
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
	switch {
	case allowAll:
		corsConfig.AllowAllOrigins = true
	case len(normalizedOrigins) > 0:
		corsConfig.AllowOrigins = normalizedOrigins
	}
	if corsConfig.AllowAllOrigins || len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.Processor != nil {
			eventHandler := handlers.NewEventHandler(services.Processor)
			apiGroup.POST("/events", eventHandler.HandleNotification)
		}

		if services.Runs != nil {
			runHandler := handlers.NewRunHandler(services.Runs)
			runGroup := apiGroup.Group("/runs")
			{
				runGroup.GET("", runHandler.ListRuns)
				runGroup.GET("/:id", runHandler.GetRun)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
