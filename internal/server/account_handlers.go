package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/memeflix/backend/internal/history"
	"github.com/memeflix/backend/internal/votes"
)

type memeReferencePayload struct {
	MemeID uint `json:"meme_id"`
}

type voteResponsePayload struct {
	MemeID    uint            `json:"meme_id"`
	Result    votes.Result    `json:"result"`
	Vote      votes.Direction `json:"vote"`
	Upvotes   int64           `json:"upvotes"`
	Downvotes int64           `json:"downvotes"`
	Score     int64           `json:"score"`
}

func (h *httpHandler) voteHandler(direction votes.Direction) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		memeID, ok := pathID(c, "id")
		if !ok {
			writeError(c, http.StatusBadRequest, "invalid_meme_id", "meme id must be a positive integer")
			return
		}

		outcome, err := h.votes.Cast(c.Request.Context(), userID, memeID, direction)
		if err != nil {
			h.respondError(c, "votes.cast", err)
			return
		}

		status := http.StatusOK
		current := direction
		switch outcome.Result {
		case votes.ResultRecorded:
			status = http.StatusCreated
		case votes.ResultRemoved:
			current = ""
		}
		c.JSON(status, voteResponsePayload{
			MemeID:    memeID,
			Result:    outcome.Result,
			Vote:      current,
			Upvotes:   outcome.Upvotes,
			Downvotes: outcome.Downvotes,
			Score:     outcome.Upvotes - outcome.Downvotes,
		})
	}
}

func (h *httpHandler) handleUserVotes(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	byMeme, err := h.votes.UserVotes(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "votes.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": byMeme})
}

func (h *httpHandler) handleListFavorites(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	favoriteMemes, err := h.favorites.List(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "favorites.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memes": favoriteMemes})
}

func (h *httpHandler) handleFavoriteIDs(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	ids, err := h.favorites.IDs(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "favorites.ids", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (h *httpHandler) handleAddFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	var request memeReferencePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.MemeID == 0 {
		writeError(c, http.StatusBadRequest, "invalid_meme_id", "meme_id must be a positive integer")
		return
	}

	created, err := h.favorites.Add(c.Request.Context(), userID, request.MemeID)
	if err != nil {
		h.respondError(c, "favorites.add", err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, gin.H{"meme_id": request.MemeID, "favorited": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meme_id": request.MemeID, "favorited": true, "message": "already in favorites"})
}

func (h *httpHandler) handleRemoveFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	memeID, ok := pathID(c, "memeId")
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid_meme_id", "meme id must be a positive integer")
		return
	}
	if err := h.favorites.Remove(c.Request.Context(), userID, memeID); err != nil {
		h.respondError(c, "favorites.remove", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meme_id": memeID, "favorited": false})
}

func (h *httpHandler) handleRecordView(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	var request memeReferencePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.MemeID == 0 {
		writeError(c, http.StatusBadRequest, "invalid_meme_id", "meme_id must be a positive integer")
		return
	}
	if err := h.history.Record(c.Request.Context(), userID, request.MemeID); err != nil {
		h.respondError(c, "history.record", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"meme_id": request.MemeID})
}

func (h *httpHandler) handleListHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	limit, ok := limitFromQuery(c, history.DefaultLimit)
	if !ok {
		return
	}
	entries, err := h.history.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.respondError(c, "history.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
