package wake

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storyprint/printqueue/common"
	"go.uber.org/zap"
)

// Waker is anything that can cut its idle poll short.
type Waker interface {
	Wake()
}

// Handler serves POST /wake. Requests must carry the shared token; an
// empty configured token disables the endpoint.
func Handler(token string, w Waker, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Error(common.Errf(http.StatusForbidden, "wake endpoint disabled"))
			return
		}

		got := c.GetHeader(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn("wake rejected", zap.String("remote", c.ClientIP()))
			c.Error(common.Errf(http.StatusUnauthorized, "invalid wake token"))
			return
		}

		w.Wake()
		c.JSON(http.StatusAccepted, gin.H{"woken": true})
	}
}
