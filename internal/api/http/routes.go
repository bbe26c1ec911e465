package http

import "github.com/gin-gonic/gin"

// Register mounts every REST route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Prometheus())
	r.GET("/metrics/json", h.MetricsJSON)

	api := r.Group("/api")
	api.GET("/profiles", h.ListProfiles)
	api.GET("/history", h.AllHistory)

	sessions := api.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("", h.ListSessions)
	sessions.POST("/prune", h.PruneSessions)
	sessions.GET("/:name", h.GetSession)
	sessions.DELETE("/:name", h.DeleteSession)

	sessions.POST("/:name/exec", h.Exec)
	sessions.POST("/:name/signal", h.Signal)

	sessions.GET("/:name/cwd", h.GetCwd)
	sessions.PUT("/:name/cwd", h.Chdir)
	sessions.GET("/:name/env/:var", h.GetEnv)
	sessions.PUT("/:name/env/:var", h.SetEnv)
	sessions.DELETE("/:name/env/:var", h.UnsetEnv)

	sessions.GET("/:name/history", h.History)
}
