package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/auth"
)

func NewRouter(app App, owners auth.Provider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), AccessLogMiddleware(app.Logger()))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	g := r.Group("/", auth.OwnerMiddleware(owners))
	g.POST("/sessions", PostSession(app))
	g.POST("/sessions/:id/stop", PostSessionStop(app))
	g.GET("/sessions", GetSessions(app))
	g.GET("/sessions/active", GetActiveSession(app))

	g.POST("/pomodoros", PostPomodoro(app))
	g.POST("/pomodoros/:id/complete", PostPomodoroComplete(app))
	g.POST("/pomodoros/:id/abandon", PostPomodoroAbandon(app))
	g.GET("/pomodoros", GetPomodoros(app))
	g.GET("/pomodoros/running", GetRunningPomodoro(app))

	g.GET("/notifications", GetNotifications(app))
	g.POST("/notifications/:id/read", PostNotificationRead(app))
	return r
}
