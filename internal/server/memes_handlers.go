package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/memeflix/backend/internal/memes"
)

const (
	defaultRelatedTagsLimit = 10
	defaultByTagLimit       = 20
	defaultPopularTagsLimit = 20
)

func (h *httpHandler) pageFromQuery(c *gin.Context) (memes.Page, bool) {
	number, err := queryInt(c, "page", memes.DefaultPage)
	if err != nil {
		writeInvalidParameter(c, "page")
		return memes.Page{}, false
	}
	limit, err := queryInt(c, "limit", memes.DefaultLimit)
	if err != nil {
		writeInvalidParameter(c, "limit")
		return memes.Page{}, false
	}
	page, err := memes.NewPage(number, limit)
	if err != nil {
		h.respondError(c, "memes.page", err)
		return memes.Page{}, false
	}
	return page, true
}

func limitFromQuery(c *gin.Context, fallback int) (int, bool) {
	limit, err := queryInt(c, "limit", fallback)
	if err != nil || limit <= 0 {
		writeInvalidParameter(c, "limit")
		return 0, false
	}
	return limit, true
}

func (h *httpHandler) handleListMemes(c *gin.Context) {
	page, ok := h.pageFromQuery(c)
	if !ok {
		return
	}
	listing, err := h.memes.List(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, "memes.list", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handleSearchMemes(c *gin.Context) {
	page, ok := h.pageFromQuery(c)
	if !ok {
		return
	}
	filter := memes.SearchFilter{
		Query: c.Query("q"),
		Type:  memes.MediaType(c.Query("type")),
		Sort:  memes.ParseSortOrder(c.Query("sort")),
		Tag:   c.Query("tag"),
	}
	listing, err := h.memes.Search(c.Request.Context(), filter, page)
	if err != nil {
		h.respondError(c, "memes.search", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *httpHandler) handleRandomMeme(c *gin.Context) {
	meme, err := h.memes.Random(c.Request.Context())
	if err != nil {
		h.respondError(c, "memes.random", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meme": meme})
}

func (h *httpHandler) handleGetMeme(c *gin.Context) {
	memeID, ok := pathID(c, "id")
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid_meme_id", "meme id must be a positive integer")
		return
	}
	meme, err := h.memes.Get(c.Request.Context(), memeID)
	if err != nil {
		h.respondError(c, "memes.get", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meme": meme})
}

func (h *httpHandler) handleMemesByTag(c *gin.Context) {
	tag := strings.TrimSpace(c.Param("tag"))
	if tag == "" {
		writeError(c, http.StatusBadRequest, "invalid_tag", "tag is required")
		return
	}
	limit, ok := limitFromQuery(c, defaultByTagLimit)
	if !ok {
		return
	}
	result, err := h.memes.ByTag(c.Request.Context(), tag, limit)
	if err != nil {
		h.respondError(c, "memes.by_tag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": tag, "memes": result})
}

func (h *httpHandler) handleRelatedTags(c *gin.Context) {
	memeID, ok := pathID(c, "id")
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid_meme_id", "meme id must be a positive integer")
		return
	}
	limit, ok := limitFromQuery(c, defaultRelatedTagsLimit)
	if !ok {
		return
	}
	tags, err := h.memes.RelatedTags(c.Request.Context(), memeID, limit)
	if err != nil {
		h.respondError(c, "memes.related_tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *httpHandler) handlePopularTags(c *gin.Context) {
	limit, ok := limitFromQuery(c, defaultPopularTagsLimit)
	if !ok {
		return
	}
	tags, err := h.memes.PopularTags(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "memes.popular_tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *httpHandler) handleAllTags(c *gin.Context) {
	tags, err := h.memes.AllTags(c.Request.Context())
	if err != nil {
		h.respondError(c, "memes.all_tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
