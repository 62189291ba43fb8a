package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/memeflix/backend/internal/media"
	"go.uber.org/zap"
)

func (h *httpHandler) handleMedia(c *gin.Context) {
	// The catch-all parameter keeps its leading slash; any further separator is rejected.
	filename := strings.TrimPrefix(c.Param("filename"), "/")
	if err := media.ValidateFilename(filename); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_filename", "filename is invalid")
		return
	}

	object, err := h.media.Open(c.Request.Context(), filename)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(c, http.StatusNotFound, "media_not_found", "media file not found")
			return
		}
		h.logger.Error("media open failed", zap.String("filename", filename), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "media_send_failed", "media file could not be sent")
		return
	}
	defer func() {
		if closeErr := object.Close(); closeErr != nil {
			h.logger.Warn("media close failed", zap.String("filename", filename), zap.Error(closeErr))
		}
	}()

	info := object.Info()
	c.Header("Cache-Control", "public, max-age=86400")
	http.ServeContent(c.Writer, c.Request, info.Name, info.ModTime, object)
}
