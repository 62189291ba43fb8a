package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/memeflix/backend/internal/auth"
	"github.com/memeflix/backend/internal/favorites"
	"github.com/memeflix/backend/internal/history"
	"github.com/memeflix/backend/internal/media"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/users"
	"github.com/memeflix/backend/internal/votes"
	"go.uber.org/zap"
)

const userIDContextKey = "memeflix_user_id"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingUsers        = errors.New("users service dependency required")
	errMissingMemes        = errors.New("memes service dependency required")
	errMissingVotes        = errors.New("vote ledger dependency required")
	errMissingFavorites    = errors.New("favorites service dependency required")
	errMissingHistory      = errors.New("history service dependency required")
	errMissingMediaStore   = errors.New("media store dependency required")
)

type TokenManager interface {
	IssueToken(ctx context.Context, principal auth.Principal) (string, int64, error)
	ValidateToken(token string) (auth.Principal, error)
}

type Dependencies struct {
	TokenManager   TokenManager
	Users          *users.Service
	Memes          *memes.Service
	Votes          *votes.Ledger
	Favorites      *favorites.Service
	History        *history.Service
	MediaStore     media.Store
	Logger         *zap.Logger
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.TokenManager == nil:
		return nil, errMissingTokenManager
	case deps.Users == nil:
		return nil, errMissingUsers
	case deps.Memes == nil:
		return nil, errMissingMemes
	case deps.Votes == nil:
		return nil, errMissingVotes
	case deps.Favorites == nil:
		return nil, errMissingFavorites
	case deps.History == nil:
		return nil, errMissingHistory
	case deps.MediaStore == nil:
		return nil, errMissingMediaStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics := newHTTPMetrics()
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(metrics.middleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		users:     deps.Users,
		memes:     deps.Memes,
		votes:     deps.Votes,
		favorites: deps.Favorites,
		history:   deps.History,
		media:     deps.MediaStore,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", metrics.handler())
	router.GET("/media/*filename", handler.handleMedia)
	router.NoRoute(handler.handleNoRoute)

	api := router.Group("/api")
	api.POST("/auth/register", handler.handleRegister)
	api.POST("/auth/login", handler.handleLogin)

	api.GET("/memes", handler.handleListMemes)
	api.GET("/memes/random", handler.handleRandomMeme)
	api.GET("/memes/search", handler.handleSearchMemes)
	api.GET("/memes/by-tag/:tag", handler.handleMemesByTag)
	api.GET("/memes/:id", handler.handleGetMeme)
	api.GET("/memes/:id/related-tags", handler.handleRelatedTags)
	api.GET("/tags/popular", handler.handlePopularTags)
	api.GET("/tags/all", handler.handleAllTags)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)
	protected.POST("/memes/:id/upvote", handler.voteHandler(votes.DirectionUp))
	protected.POST("/memes/:id/downvote", handler.voteHandler(votes.DirectionDown))
	protected.GET("/votes", handler.handleUserVotes)
	protected.GET("/favorites", handler.handleListFavorites)
	protected.GET("/favorites/ids", handler.handleFavoriteIDs)
	protected.POST("/favorites", handler.handleAddFavorite)
	protected.DELETE("/favorites/:memeId", handler.handleRemoveFavorite)
	protected.POST("/history", handler.handleRecordView)
	protected.GET("/history", handler.handleListHistory)

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	users     *users.Service
	memes     *memes.Service
	votes     *votes.Ledger
	favorites *favorites.Service
	history   *history.Service
	media     media.Store
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleNoRoute(c *gin.Context) {
	writeError(c, http.StatusNotFound, "not_found", "route not found")
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "authorization header missing or invalid")
		return
	}
	principal, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
			abortWithError(c, http.StatusForbidden, "token_expired", "token has expired")
			return
		}
		h.logger.Warn("token validation failed", zap.Error(err))
		abortWithError(c, http.StatusForbidden, "invalid_token", "token is invalid")
		return
	}
	c.Set(userIDContextKey, principal.UserID)
	c.Next()
}

// bearerToken extracts the credentials of a Bearer authorization header. The
// scheme name is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, credentials, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(credentials)
	return token, token != ""
}

func currentUserID(c *gin.Context) (uint, bool) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok && userID != 0
}
