package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ip-workflow-service/internal/service"
)

type submissionTypeRequest struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Description string `json:"description"`
}

func (r submissionTypeRequest) input() service.SubmissionTypeInput {
	return service.SubmissionTypeInput{Name: r.Name, Slug: r.Slug, Description: r.Description}
}

type stageRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Order       int    `json:"order" binding:"required"`
	IsActive    *bool  `json:"is_active"`
	Description string `json:"description"`
}

func (r stageRequest) input() service.StageInput {
	return service.StageInput{
		Code:        r.Code,
		Name:        r.Name,
		Order:       r.Order,
		IsActive:    r.IsActive,
		Description: r.Description,
	}
}

func (h *Handler) listSubmissionTypes(c *gin.Context) {
	types, err := h.catalog.ListSubmissionTypes(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": types}))
}

func (h *Handler) getSubmissionType(c *gin.Context) {
	id, ok := pathID(c, "id", "submission type")
	if !ok {
		return
	}
	st, err := h.catalog.GetSubmissionType(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(st))
}

func (h *Handler) createSubmissionType(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req submissionTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	st, err := h.catalog.CreateSubmissionType(c.Request.Context(), principal, req.input())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(st))
}

func (h *Handler) updateSubmissionType(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission type")
	if !ok {
		return
	}
	var req submissionTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	st, err := h.catalog.UpdateSubmissionType(c.Request.Context(), principal, id, req.input())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(st))
}

// listStages returns every stage of the type; ?active=true limits the list
// to the stages submissions can move through.
func (h *Handler) listStages(c *gin.Context) {
	id, ok := pathID(c, "id", "submission type")
	if !ok {
		return
	}

	list := h.catalog.ListStages
	if strings.EqualFold(c.Query("active"), "true") {
		list = h.catalog.ActiveStages
	}
	stages, err := list(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": stages}))
}

func (h *Handler) createStage(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	typeID, ok := pathID(c, "id", "submission type")
	if !ok {
		return
	}
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	stage, err := h.catalog.CreateStage(c.Request.Context(), principal, typeID, req.input())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(stage))
}

func (h *Handler) updateStage(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "stage")
	if !ok {
		return
	}
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	stage, err := h.catalog.UpdateStage(c.Request.Context(), principal, id, req.input())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(stage))
}

func (h *Handler) deleteStage(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "stage")
	if !ok {
		return
	}

	if err := h.catalog.DeleteStage(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listRequirements(c *gin.Context) {
	id, ok := pathID(c, "id", "submission type")
	if !ok {
		return
	}
	reqs, err := h.catalog.ListRequirements(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": reqs}))
}

func (h *Handler) createRequirement(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	typeID, ok := pathID(c, "id", "submission type")
	if !ok {
		return
	}

	var req struct {
		Code             string   `json:"code" binding:"required"`
		Name             string   `json:"name" binding:"required"`
		Description      string   `json:"description"`
		Required         bool     `json:"required"`
		Order            int      `json:"order"`
		AllowedFileTypes []string `json:"allowed_file_types"`
		MaxSizeKB        int64    `json:"max_size_kb"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	created, err := h.catalog.CreateRequirement(c.Request.Context(), principal, typeID, service.RequirementInput{
		Code:             req.Code,
		Name:             req.Name,
		Description:      req.Description,
		Required:         req.Required,
		Order:            req.Order,
		AllowedFileTypes: req.AllowedFileTypes,
		MaxSizeKB:        req.MaxSizeKB,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(created))
}

func (h *Handler) stageRequirements(c *gin.Context) {
	id, ok := pathID(c, "id", "stage")
	if !ok {
		return
	}
	resolved, err := h.catalog.ResolveRequirements(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": resolved}))
}

func (h *Handler) attachRequirement(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	stageID, ok := pathID(c, "id", "stage")
	if !ok {
		return
	}

	var req struct {
		RequirementID string `json:"requirement_id" binding:"required"`
		IsRequired    *bool  `json:"is_required"`
		Order         int    `json:"order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	reqID, err := uuid.Parse(strings.TrimSpace(req.RequirementID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid requirement_id"))
		return
	}

	link, err := h.catalog.AttachRequirement(c.Request.Context(), principal, stageID, reqID, req.IsRequired, req.Order)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(link))
}
