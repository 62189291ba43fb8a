package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/memeflix/backend/internal/auth"
	"github.com/memeflix/backend/internal/users"
	"go.uber.org/zap"
)

type registerRequestPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int64      `json:"expires_in"`
	User      users.User `json:"user"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "request body must be JSON with username, email and password")
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegistrationRequest{
		Username: request.Username,
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		h.respondError(c, "auth.register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "request body must be JSON with username and password")
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.respondError(c, "auth.login", err)
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), auth.Principal{UserID: user.ID, Username: user.Username})
	if err != nil {
		h.logger.Error("failed to issue token", zap.Uint("user_id", user.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "token_issue_failed", internalErrorMessage)
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: expiresIn,
		User:      user,
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "auth.me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
