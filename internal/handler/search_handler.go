package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cyberchat-go/internal/service"
	"cyberchat-go/pkg/log"
)

// SearchHandler exposes the retrieval stage for diagnostics.
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search handles GET /search?query=&topK=.
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}
	topK := 0
	if raw := c.Query("topK"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topK must be a positive integer"})
			return
		}
		topK = n
	}

	matches, err := h.searchService.Search(c.Request.Context(), query, topK)
	if err != nil {
		log.Errorf("[SearchHandler] search failed, query: '%s': %v", query, err)
		status, msg := errorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": matches})
}
