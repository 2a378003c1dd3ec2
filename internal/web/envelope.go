package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tunelink/internal/music/engine"
)

// All API replies share one envelope so the dashboard can switch on status.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

func warning(c *gin.Context, message string) {
	c.JSON(http.StatusOK, envelope{Status: "warning", Message: message})
}

func failure(c *gin.Context, code int, message string) {
	c.JSON(code, envelope{Status: "error", Message: message})
}

// respondEngineError turns engine failures into envelopes. Not-ready and
// timeout are warnings the dashboard retries, not errors.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotReady), errors.Is(err, engine.ErrTimeout):
		warning(c, "Bot is not ready yet, try again in a moment.")
	case errors.Is(err, engine.ErrNotConnected):
		failure(c, http.StatusConflict, "Bot is not in a voice channel.")
	case errors.Is(err, engine.ErrQueueEmpty):
		warning(c, "The queue is empty.")
	case errors.Is(err, engine.ErrNotPlaying):
		warning(c, "Nothing is playing.")
	default:
		failure(c, http.StatusInternalServerError, err.Error())
	}
}
