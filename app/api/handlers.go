package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storysift/storysift/app/database"
	"github.com/storysift/storysift/app/sources"
)

// NewHandler wires the API handlers. reload re-reads the sources file and
// applies it to the registry; it is invoked by POST /api/sources/reload.
func NewHandler(provider SourceProvider, articles database.ArticleRepository, db Pinger, reload func() error) *Handler {
	return &Handler{
		sources:  provider,
		articles: articles,
		db:       db,
		reload:   reload,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		slog.Error("Database ping failed", "error", err)
		health["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		health["database"] = "ok"
	}

	if count, err := h.articles.GetArticleCount(); err == nil {
		health["articles"] = count
	}

	snapshot := h.sources.Snapshot()
	health["sources"] = len(snapshot)
	health["active_sources"] = countActive(snapshot)

	c.JSON(status, health)
}

func (h *Handler) ListSources(c *gin.Context) {
	snapshot := h.sources.Snapshot()
	now := time.Now().UTC()

	list := make([]gin.H, 0, len(snapshot))
	for _, src := range snapshot {
		list = append(list, sourceInfo(src, now))
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": list,
		"total":   len(list),
	})
}

func (h *Handler) GetSource(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source id parameter"})
		return
	}

	src, ok := h.sources.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	c.JSON(http.StatusOK, sourceInfo(src, time.Now().UTC()))
}

func (h *Handler) ReloadSources(c *gin.Context) {
	if err := h.reload(); err != nil {
		slog.Error("Failed to reload sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload sources",
			"details": err.Error(),
		})
		return
	}

	snapshot := h.sources.Snapshot()

	slog.Info("Sources reloaded via API", "total", len(snapshot), "active", countActive(snapshot))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sources reloaded",
		"total":   len(snapshot),
		"active":  countActive(snapshot),
	})
}

// sourceInfo renders one source with its scheduling health. Unset health
// timestamps are omitted rather than rendered as zero times.
func sourceInfo(src sources.Source, now time.Time) gin.H {
	info := gin.H{
		"id":                   src.ID,
		"name":                 src.Name,
		"kind":                 string(src.Kind),
		"url":                  src.URL,
		"active":               src.Active,
		"weight":               src.Weight,
		"interval":             src.Interval().String(),
		"running":              src.Running,
		"due":                  src.Due(now),
		"consecutive_failures": src.ConsecutiveFailures,
	}

	if src.Category != "" {
		info["category"] = src.Category
	}
	if src.LastSuccessAt != nil {
		info["last_success_at"] = src.LastSuccessAt
	}
	if src.LastAttemptAt != nil {
		info["last_attempt_at"] = src.LastAttemptAt
	}
	if src.NextAttemptAt != nil {
		info["next_attempt_at"] = src.NextAttemptAt
	}
	if src.LastError != "" {
		info["last_error"] = src.LastError
	}

	return info
}

func countActive(snapshot []sources.Source) int {
	active := 0
	for _, src := range snapshot {
		if src.Active {
			active++
		}
	}
	return active
}
