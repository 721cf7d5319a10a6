package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/flathound/flathound/app/database"
	"github.com/flathound/flathound/app/jobs"
)

const (
	defaultListingLimit = 20
	maxListingLimit     = 200
	listingWindow       = 24 * time.Hour
)

func NewHandler(orchestrator OrchestratorInterface, db jobs.Pinger,
	listingRepo database.ListingRepository) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		db:           db,
		listingRepo:  listingRepo,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		slog.Error("Database ping failed", "error", err)
		health["status"] = "degraded"
		health["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	health["status"] = "ok"
	health["database"] = "ok"
	health["jobs_running"] = h.orchestrator.Status().IsRunning

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIGetStatus(c *gin.Context) {
	status := h.orchestrator.Status()
	pending := h.orchestrator.PendingTasks()

	c.JSON(http.StatusOK, gin.H{
		"jobs":          status,
		"pending_tasks": pending,
	})
}

func (h *Handler) APIStartJobs(c *gin.Context) {
	h.orchestrator.Start()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"running": h.orchestrator.Status().IsRunning,
	})
}

func (h *Handler) APIStopJobs(c *gin.Context) {
	h.orchestrator.Stop()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"running": h.orchestrator.Status().IsRunning,
	})
}

func (h *Handler) APITriggerJob(c *gin.Context) {
	jobType := c.Param("type")

	result, err := h.orchestrator.Trigger(c.Request.Context(), jobType)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrUnknownJob):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, jobs.ErrJobRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			slog.Error("Trigger failed", "job", jobType, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job":     jobType,
		"result":  result,
	})
}

func (h *Handler) APIListListings(c *gin.Context) {
	limit := defaultListingLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}
	if limit > maxListingLimit {
		limit = maxListingLimit
	}

	since := time.Now().Add(-listingWindow)
	listings, err := h.listingRepo.GetRecentActive(since, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_listings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]map[string]interface{}, 0, len(listings))
	for _, listing := range listings {
		item := map[string]interface{}{
			"id":           listing.ID,
			"external_id":  listing.ExternalID,
			"title":        listing.Title,
			"url":          listing.URL,
			"neighborhood": listing.Neighborhood,
			"risk_score":   listing.RiskScore,
			"harvested_at": listing.HarvestedAt,
		}
		if listing.Price != nil {
			item["price"] = *listing.Price
		}
		if listing.Bedrooms != nil {
			item["bedrooms"] = *listing.Bedrooms
		}
		if listing.PetFriendly != nil {
			item["pet_friendly"] = *listing.PetFriendly
		}
		if listing.PostedAt != nil {
			item["posted_at"] = listing.PostedAt
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"listings": items,
		"total":    len(items),
	})
}
