package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/pulse/internal/metrics"
	"github.com/opswatch/pulse/internal/service"
	"github.com/opswatch/pulse/pkg/models"
)

type Handler struct {
	ingestion *service.IngestionService
	retrieval *service.RetrievalService
	logger    *slog.Logger
}

func NewHandler(ingestion *service.IngestionService, retrieval *service.RetrievalService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ingestion: ingestion, retrieval: retrieval, logger: logger}
}

func RegisterRoutes(r *gin.Engine, h *Handler, m *metrics.Metrics) {
	v1 := r.Group("/v1")
	{
		v1.POST("/events/ingest", h.Ingest)
		v1.GET("/events/retrieve", h.Retrieve)
		v1.GET("/events/stats", h.Stats)
		v1.GET("/events/:id", h.GetByID)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))
}

// Ingest: POST /v1/events/ingest
// Body: JSON array of events. This is the schema boundary: each element is
// decoded individually so one malformed object skips that event instead of
// rejecting the batch.
func (h *Handler) Ingest(c *gin.Context) {
	var raw []json.RawMessage
	if err := c.BindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}

	events := make([]*models.Event, 0, len(raw))
	parseSkipped := 0
	for _, r := range raw {
		var ev models.Event
		if err := json.Unmarshal(r, &ev); err != nil {
			h.logger.Warn("skipping unparseable event", "error", err)
			parseSkipped++
			continue
		}
		events = append(events, &ev)
	}

	result := h.ingestion.Ingest(c.Request.Context(), events)
	result.SkippedCount += parseSkipped

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

// Retrieve: GET /v1/events/retrieve?q=...&limit=100&days_back=14&alpha=0.7&decay=0.02
func (h *Handler) Retrieve(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q parameter"})
		return
	}

	opts := service.DefaultRetrieveOptions()
	var err error
	if opts.Limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(opts.Limit))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	if opts.DaysBack, err = strconv.Atoi(c.DefaultQuery("days_back", strconv.Itoa(opts.DaysBack))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days_back"})
		return
	}
	if opts.Alpha, err = strconv.ParseFloat(c.DefaultQuery("alpha", "0.7"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alpha"})
		return
	}
	if opts.Decay, err = strconv.ParseFloat(c.DefaultQuery("decay", "0.02"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decay"})
		return
	}

	events, err := h.retrieval.Retrieve(c.Request.Context(), q, opts)
	if err != nil {
		if opts.Limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"query":     q,
			"count":     len(events),
			"limit":     opts.Limit,
			"days_back": opts.DaysBack,
			"alpha":     opts.Alpha,
			"decay":     opts.Decay,
		},
		"data": events,
	})
}

// GetByID: GET /v1/events/:id
func (h *Handler) GetByID(c *gin.Context) {
	id := c.Param("id")
	ev, err := h.ingestion.Store().GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, ev)
}

// Stats: GET /v1/events/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.ingestion.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
