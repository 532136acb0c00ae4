package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ip-workflow-service/internal/repository"
)

func (h *Handler) submissionHistory(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	filter, err := parseHistoryQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	entries, err := h.projector.History(c.Request.Context(), principal, id, filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": entries}))
}

func (h *Handler) submissionTimeline(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	groups, err := h.projector.Timeline(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": groups}))
}

func (h *Handler) submissionStatistics(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	stats, err := h.projector.Statistics(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(stats))
}

func (h *Handler) statusDistribution(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	dist, err := h.projector.StatusDistribution(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(dist))
}

func (h *Handler) recentActivity(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	entries, err := h.projector.RecentActivity(c.Request.Context(), principal, queryInt(c, "limit"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": entries}))
}

func parseHistoryQuery(c *gin.Context) (repository.HistoryFilter, error) {
	var filter repository.HistoryFilter
	var err error

	filter.Actions = splitCSV(c.Query("action"))
	filter.EventTypes = splitCSV(c.Query("event_type"))
	if filter.StageID, err = queryUUID(c, "stage_id"); err != nil {
		return filter, err
	}
	if filter.DocumentID, err = queryUUID(c, "document_id"); err != nil {
		return filter, err
	}
	if filter.DateFrom, err = queryTime(c, "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = queryTime(c, "date_to"); err != nil {
		return filter, err
	}
	return filter, nil
}
