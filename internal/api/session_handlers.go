package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/auth"
	"github.com/yourname/focustracker/internal/service"
)

func PostSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.StartSessionRequest
		if err := bindOptionalJSON(c, &body); err != nil {
			HandleBadRequest(c, app.Logger(), err, "Invalid JSON")
			return
		}

		rec, err := app.Tracker().Start(c.Request.Context(), auth.OwnerID(c), body)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to start session")
			return
		}
		HandleCreated(c, app.Logger(), rec)
	}
}

func PostSessionStop(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := app.Tracker().Stop(c.Request.Context(), c.Param("id"), auth.OwnerID(c))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to stop session")
			return
		}
		HandleSuccess(c, app.Logger(), rec, nil)
	}
}

func GetSessions(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := app.Tracker().List(c.Request.Context(), auth.OwnerID(c))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch sessions")
			return
		}
		HandleSuccess(c, app.Logger(), records, map[string]any{"count": len(records)})
	}
}

// GetActiveSession returns the open session. Observing it also runs the
// rest-reminder check for the owner.
func GetActiveSession(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		owner := auth.OwnerID(c)

		rec, err := app.Tracker().Active(ctx, owner)
		if err != nil {
			HandleError(c, app.Logger(), err, "No active session")
			return
		}

		reminded, err := app.Reminders().CheckRestReminder(ctx, owner)
		if err != nil {
			app.Logger().Warnf("[request_id=%s] rest reminder check failed: %v", c.GetString("request_id"), err)
		}
		HandleSuccess(c, app.Logger(), rec, map[string]any{"rest_reminder_created": reminded})
	}
}
