package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/service"
)

func (h *Handler) createSubmission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req struct {
		SubmissionTypeID string          `json:"submission_type_id" binding:"required"`
		Title            string          `json:"title" binding:"required"`
		Detail           json.RawMessage `json:"detail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	typeID, err := uuid.Parse(strings.TrimSpace(req.SubmissionTypeID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid submission_type_id"))
		return
	}

	sub, err := h.workflow.Create(c.Request.Context(), principal, service.CreateSubmissionInput{
		SubmissionTypeID: typeID,
		Title:            req.Title,
		Detail:           req.Detail,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(sub))
}

func (h *Handler) listSubmissions(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	opts, err := parseSubmissionQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	subs, err := h.workflow.List(c.Request.Context(), principal, opts)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"items": subs}))
}

func (h *Handler) getSubmission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	view, err := h.workflow.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(view))
}

func (h *Handler) discardDraft(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	if err := h.workflow.DiscardDraft(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) submitSubmission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	var req struct {
		ExpectedVersion *int `json:"expected_version"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
	}

	sub, err := h.workflow.Submit(c.Request.Context(), principal, id, req.ExpectedVersion)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(sub))
}

type processRequest struct {
	Action          string  `json:"action" binding:"required"`
	Comment         string  `json:"comment"`
	TargetStageID   *string `json:"target_stage_id"`
	CertificateRef  string  `json:"certificate_ref"`
	ExpectedVersion *int    `json:"expected_version"`
}

func (h *Handler) processSubmission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	target, err := parseOptionalUUID(req.TargetStageID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid target_stage_id"))
		return
	}

	sub, err := h.workflow.Process(c.Request.Context(), principal, id, service.ProcessInput{
		Action:          service.Action(strings.ToLower(strings.TrimSpace(req.Action))),
		Comment:         req.Comment,
		TargetStageID:   target,
		CertificateRef:  strings.TrimSpace(req.CertificateRef),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(sub))
}

func parseSubmissionQuery(c *gin.Context) (service.ListSubmissionsOptions, error) {
	var opts service.ListSubmissionsOptions

	if statusParam := c.Query("status"); statusParam != "" {
		for _, val := range splitCSV(statusParam) {
			status := model.SubmissionStatus(strings.ToLower(val))
			if !status.Valid() {
				return opts, fmt.Errorf("unknown status %q", val)
			}
			opts.Statuses = append(opts.Statuses, status)
		}
	}
	if typeParam := c.Query("submission_type_id"); typeParam != "" {
		for _, val := range splitCSV(typeParam) {
			id, err := uuid.Parse(val)
			if err != nil {
				return opts, err
			}
			opts.TypeIDs = append(opts.TypeIDs, id)
		}
	}
	stageID, err := queryUUID(c, "stage_id")
	if err != nil {
		return opts, err
	}
	opts.StageID = stageID
	if opts.DateFrom, err = queryTime(c, "date_from"); err != nil {
		return opts, err
	}
	if opts.DateTo, err = queryTime(c, "date_to"); err != nil {
		return opts, err
	}
	opts.Limit = queryInt(c, "limit")
	opts.Offset = queryInt(c, "offset")
	opts.Search = strings.TrimSpace(c.Query("search"))

	return opts, nil
}
