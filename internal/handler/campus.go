package handler

import (
	"net/http"
	"strings"

	"dora/internal/service"

	"github.com/gin-gonic/gin"
)

// CampusHandler serves the location dataset, search and routes
type CampusHandler struct {
	store  *service.LocationStore
	search *service.LocationSearch
	routes *service.RouteFinder
}

// NewCampusHandler creates a new campus handler
func NewCampusHandler(store *service.LocationStore, search *service.LocationSearch, routes *service.RouteFinder) *CampusHandler {
	return &CampusHandler{store: store, search: search, routes: routes}
}

// Locations handles GET /api/v1/locations
func (h *CampusHandler) Locations(c *gin.Context) {
	all := h.store.All(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "data": all, "count": len(all)})
}

// Search handles GET /api/v1/locations/search?q=
func (h *CampusHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Query parameter q is required"})
		return
	}

	matches, layer := h.search.SearchWithLayer(c.Request.Context(), q)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    matches,
		"count":   len(matches),
		"layer":   layer,
	})
}

// Route handles GET /api/v1/locations/route?from=&to=
func (h *CampusHandler) Route(c *gin.Context) {
	from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Query parameters from and to are required"})
		return
	}

	route, err := h.routes.Route(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": route})
}
