package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/config"
	"github.com/yourname/focustracker/internal/response"
)

const ownerKey = "owner_id"

func OwnerMiddleware(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := provider.ResolveOwner(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Unauthorized(err.Error()))
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// NewProvider picks the provider for cfg: the owner header, with the
// development fallback owner when one is configured.
func NewProvider(cfg *config.Config, logger internal.Logger) Provider {
	var p Provider = NewHeaderProvider(cfg.OwnerHeader, logger)
	if cfg.Env == "development" && cfg.DevOwnerID != "" {
		p = NewLocalProvider(p, cfg.DevOwnerID, logger)
	}
	return p
}

// OwnerID returns the owner set by OwnerMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
