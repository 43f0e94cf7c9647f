package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal/auth"
)

func GetNotifications(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := app.Notifications().ListNotifications(c.Request.Context(), auth.OwnerID(c))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch notifications")
			return
		}
		unread := 0
		for _, n := range list {
			if !n.Read {
				unread++
			}
		}
		HandleSuccess(c, app.Logger(), list, map[string]any{"count": len(list), "unread": unread})
	}
}

func PostNotificationRead(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := app.Notifications().MarkRead(c.Request.Context(), id, auth.OwnerID(c)); err != nil {
			HandleError(c, app.Logger(), err, "Failed to mark notification read")
			return
		}
		HandleSuccess(c, app.Logger(), map[string]any{"id": id, "read": true}, nil)
	}
}
