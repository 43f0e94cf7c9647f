package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/service"
)

type AbandonRequest struct {
	Reason string `json:"reason,omitempty"`
}

func PostPomodoro(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.StartPomodoroRequest
		if err := bindOptionalJSON(c, &body); err != nil {
			HandleBadRequest(c, app.Logger(), err, "Invalid JSON")
			return
		}

		cycle, err := app.Pomodoro().Start(c.Request.Context(), auth.OwnerID(c), body)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to start pomodoro")
			return
		}
		HandleCreated(c, app.Logger(), cycle)
	}
}

func PostPomodoroComplete(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cycle, err := app.Pomodoro().Complete(c.Request.Context(), c.Param("id"), auth.OwnerID(c))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to complete pomodoro")
			return
		}
		HandleSuccess(c, app.Logger(), cycle, nil)
	}
}

func PostPomodoroAbandon(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body AbandonRequest
		if err := bindOptionalJSON(c, &body); err != nil {
			HandleBadRequest(c, app.Logger(), err, "Invalid JSON")
			return
		}

		cycle, err := app.Pomodoro().Abandon(c.Request.Context(), c.Param("id"), auth.OwnerID(c), body.Reason)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to abandon pomodoro")
			return
		}
		HandleSuccess(c, app.Logger(), cycle, nil)
	}
}

func GetPomodoros(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cycles, err := app.Pomodoro().List(c.Request.Context(), auth.OwnerID(c))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch pomodoros")
			return
		}
		HandleSuccess(c, app.Logger(), cycles, map[string]any{"count": len(cycles)})
	}
}

func GetRunningPomodoro(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cycle, err := app.Pomodoro().Running(c.Request.Context(), auth.OwnerID(c))
		if err != nil {
			HandleError(c, app.Logger(), err, "No running pomodoro")
			return
		}
		HandleSuccess(c, app.Logger(), cycle, nil)
	}
}
