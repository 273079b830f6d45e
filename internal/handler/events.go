package handler

import (
	"net/http"
	"strconv"

	"dora/internal/model"
	"dora/internal/service"

	"github.com/gin-gonic/gin"
)

// EventHandler serves the volunteer event catalog and registrations
type EventHandler struct {
	catalog       *service.EventCatalog
	registrations service.RegistrationStore
}

// NewEventHandler creates a new event handler
func NewEventHandler(catalog *service.EventCatalog, registrations service.RegistrationStore) *EventHandler {
	return &EventHandler{catalog: catalog, registrations: registrations}
}

// Events handles GET /api/v1/events?category=&upcoming=&thisWeek=
func (h *EventHandler) Events(c *gin.Context) {
	upcoming, _ := strconv.ParseBool(c.DefaultQuery("upcoming", "false"))
	thisWeek, _ := strconv.ParseBool(c.DefaultQuery("thisWeek", "false"))

	events := h.catalog.Filter(service.EventFilter{
		Category: c.Query("category"),
		Upcoming: upcoming,
		ThisWeek: thisWeek,
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": events, "count": len(events)})
}

// Categories handles GET /api/v1/categories
func (h *EventHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.catalog.Categories()})
}

// Registrations handles GET /api/v1/registrations?sessionId=&rollNumber=&eventTitle=
func (h *EventHandler) Registrations(c *gin.Context) {
	records, err := h.registrations.List(c.Request.Context(), model.RegistrationFilter{
		SessionID:  c.Query("sessionId"),
		RollNumber: c.Query("rollNumber"),
		EventTitle: c.Query("eventTitle"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": records, "count": len(records)})
}

// RegistrationStatus handles GET /api/v1/registration-status/:eventTitle/:rollNumber
func (h *EventHandler) RegistrationStatus(c *gin.Context) {
	rec, err := h.registrations.FindActive(c.Request.Context(), c.Param("eventTitle"), c.Param("rollNumber"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "isRegistered": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "isRegistered": true, "registration": rec})
}
