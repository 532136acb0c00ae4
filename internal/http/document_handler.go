package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/service"
	"ip-workflow-service/internal/storage"
)

// uploadFile stores a multipart "file" part and returns the blob reference
// to be attached with attachDocument or used as a certificate.
func (h *Handler) uploadFile(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	if h.files == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("blob store is not configured"))
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("file part is required"))
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse(fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes)))
		return
	}

	certificate := strings.EqualFold(c.PostForm("kind"), "certificate")
	if certificate && !principal.Can(model.CapSubmissionReview) {
		h.handleError(c, service.ErrPermissionDenied)
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("cannot read file part"))
		return
	}
	defer f.Close()

	mimeType := detectMimeType(header.Header.Get("Content-Type"), header.Filename)
	store := h.files.Store
	if certificate {
		store = h.files.StoreCertificate
	}
	ref, err := store(c.Request.Context(), f, header.Size, header.Filename, mimeType)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(gin.H{
		"blob_ref":  ref,
		"file_name": header.Filename,
		"mime_type": mimeType,
		"size":      header.Size,
	}))
}

func (h *Handler) downloadFile(c *gin.Context) {
	if _, ok := h.principal(c); !ok {
		return
	}
	if h.files == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("blob store is not configured"))
		return
	}

	ref := strings.TrimPrefix(c.Param("ref"), "/")
	if strings.EqualFold(c.Query("stream"), "true") {
		h.streamFile(c, ref)
		return
	}
	url, err := h.files.PresignedURL(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidRef) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.handleError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (h *Handler) streamFile(c *gin.Context, ref string) {
	ctx := c.Request.Context()
	if err := storage.ValidateRef(ref); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	exists, err := h.files.Exists(ctx, ref)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, errorResponse("file not found"))
		return
	}
	rc, err := h.files.Retrieve(ctx, ref)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer rc.Close()

	name := path.Base(ref)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.DataFromReader(http.StatusOK, -1, detectMimeType("", name), rc, nil)
}

func (h *Handler) attachDocument(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	var req struct {
		RequirementID *string `json:"requirement_id"`
		BlobRef       string  `json:"blob_ref" binding:"required"`
		FileName      string  `json:"file_name" binding:"required"`
		MimeType      string  `json:"mime_type"`
		Size          int64   `json:"size"`
		Notes         string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	reqID, err := parseOptionalUUID(req.RequirementID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid requirement_id"))
		return
	}

	sd, err := h.documents.Upload(c.Request.Context(), principal, id, service.UploadInput{
		RequirementID: reqID,
		BlobRef:       strings.TrimSpace(req.BlobRef),
		FileName:      req.FileName,
		MimeType:      detectMimeType(req.MimeType, req.FileName),
		Size:          req.Size,
		Notes:         req.Notes,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(sd))
}

func (h *Handler) listDocuments(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission")
	if !ok {
		return
	}

	docs, err := h.documents.List(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"items": docs}))
}

func (h *Handler) setDocumentStatus(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "submission document")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	status := model.DocumentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	sd, err := h.documents.SetStatus(c.Request.Context(), principal, id, status, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(sd))
}

// detectMimeType prefers the declared type and falls back to the file
// extension when the client sent nothing useful.
func detectMimeType(declared, fileName string) string {
	declared = strings.TrimSpace(declared)
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}
