package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/memeflix/backend/internal/favorites"
	"github.com/memeflix/backend/internal/history"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/serviceerr"
	"github.com/memeflix/backend/internal/users"
	"github.com/memeflix/backend/internal/votes"
	"go.uber.org/zap"
)

const internalErrorMessage = "an internal error occurred"

var errInvalidParameter = errors.New("invalid parameter")

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorPayload{Error: code, Message: message})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorPayload{Error: code, Message: message})
}

// respondError maps domain errors to HTTP responses. Anything unrecognized is logged
// and reported as a generic internal error.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, memes.ErrInvalidPage):
		writeError(c, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
	case errors.Is(err, memes.ErrInvalidLimit), errors.Is(err, history.ErrInvalidLimit):
		writeError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
	case errors.Is(err, memes.ErrMemeNotFound):
		writeError(c, http.StatusNotFound, "meme_not_found", "meme not found")
	case errors.Is(err, favorites.ErrFavoriteNotFound):
		writeError(c, http.StatusNotFound, "favorite_not_found", "meme is not in favorites")
	case errors.Is(err, votes.ErrInvalidDirection):
		writeError(c, http.StatusBadRequest, "invalid_vote", "vote direction must be up or down")
	case errors.Is(err, users.ErrInvalidUsername):
		writeError(c, http.StatusBadRequest, "invalid_username", "username must be 3-32 letters, digits, underscores or dashes")
	case errors.Is(err, users.ErrInvalidEmail):
		writeError(c, http.StatusBadRequest, "invalid_email", "email address is invalid")
	case errors.Is(err, users.ErrInvalidPassword):
		writeError(c, http.StatusBadRequest, "invalid_password", "password must be 6-72 characters")
	case errors.Is(err, users.ErrDuplicateUser):
		writeError(c, http.StatusConflict, "user_exists", "username or email already registered")
	case errors.Is(err, users.ErrInvalidCredentials):
		writeError(c, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
	case errors.Is(err, users.ErrUserNotFound):
		writeError(c, http.StatusNotFound, "user_not_found", "user not found")
	default:
		fields := []zap.Field{
			zap.String("operation", operation),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err),
		}
		if code, ok := serviceerr.CodeOf(err); ok {
			fields = append(fields, zap.String("error_code", code))
		}
		h.logger.Error("request failed", fields...)
		writeError(c, http.StatusInternalServerError, "internal_error", internalErrorMessage)
	}
}

// queryInt reads a positive integer query parameter, falling back when absent.
func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw, present := c.GetQuery(key)
	if !present || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errInvalidParameter
	}
	return value, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c *gin.Context, key string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(key), 10, 32)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

func writeInvalidParameter(c *gin.Context, key string) {
	writeError(c, http.StatusBadRequest, "invalid_"+key, key+" must be a positive integer")
}
