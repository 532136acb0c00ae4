package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ip-workflow-service/internal/http/middleware"
	"ip-workflow-service/internal/model"
	"ip-workflow-service/internal/service"
)

// FileStore is the blob store as seen by the upload and download endpoints.
type FileStore interface {
	service.BlobStore
	StoreCertificate(ctx context.Context, r io.Reader, size int64, fileName, mimeType string) (string, error)
	PresignedURL(ctx context.Context, ref string) (string, error)
}

type Handler struct {
	catalog        *service.CatalogService
	workflow       *service.WorkflowService
	documents      *service.DocumentService
	projector      *service.ProjectorService
	files          FileStore
	maxUploadBytes int64
	log            zerolog.Logger
}

type HandlerDeps struct {
	Catalog   *service.CatalogService
	Workflow  *service.WorkflowService
	Documents *service.DocumentService
	Projector *service.ProjectorService
	// Files may be nil when no blob store is configured; upload and
	// download endpoints then answer 503.
	Files          FileStore
	MaxUploadBytes int64
	Log            zerolog.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		catalog:        deps.Catalog,
		workflow:       deps.Workflow,
		documents:      deps.Documents,
		projector:      deps.Projector,
		files:          deps.Files,
		maxUploadBytes: deps.MaxUploadBytes,
		log:            deps.Log,
	}
}

func (h *Handler) principal(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return model.Principal{}, false
	}
	return principal, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrIllegalTransition),
		errors.Is(err, service.ErrMissingStage),
		errors.Is(err, service.ErrInvalidStage):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, service.ErrStageInUse),
		errors.Is(err, service.ErrConcurrentModification),
		errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("route", c.FullPath()).
			Msg("handler error")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func pathID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid "+label+" id"))
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryUUID(c *gin.Context, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	return parseOptionalUUID(&raw)
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(key + " must be RFC3339")
	}
	return &ts, nil
}

func queryInt(c *gin.Context, key string) int {
	if raw := strings.TrimSpace(c.Query(key)); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return 0
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

type responseEnvelope struct {
	Data interface{} `json:"data"`
}

func successResponse(data interface{}) responseEnvelope {
	return responseEnvelope{Data: data}
}

func errorResponse(msg string) gin.H {
	return gin.H{"error": msg}
}
