package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"paper-backend/internal/contentaddr"
	"paper-backend/internal/shared/server/middleware"
	"paper-backend/internal/shared/server/respond"
)

// multipartOverhead is allowed on top of the file size limit for form framing.
const multipartOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.POST("/documents/batch", h.batchUpload)
	rg.POST("/documents/search", h.search)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/content", h.content)
	rg.GET("/documents/:id/download", h.download)
	rg.GET("/documents/:id/analytics", h.analytics)
	rg.PATCH("/documents/:id", h.patch)
	rg.DELETE("/documents/:id", h.delete)
	rg.POST("/documents/:id/reprocess", h.reprocess)
	rg.POST("/documents/:id/similar", h.similar)
}

func (h *Handler) maxUploadBytes() int64 {
	if h.Svc.Settings.MaxUploadBytes > 0 {
		return h.Svc.Settings.MaxUploadBytes
	}
	return contentaddr.DefaultMaxSize
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes()+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.formError(c, err, "file is required")
		return
	}
	data, err := readFormFile(fileHeader)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	doc, err := h.Svc.StartIngestion(requestContext(c), userID, fileHeader.Filename, data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(middleware.DocumentIDKey, doc.ID)
	c.Set(middleware.StatusTransitionKey, "->"+string(doc.Status))
	respond.Created(c, toUploadResponse(doc))
}

func (h *Handler) batchUpload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit := h.Svc.Settings.BatchLimit
	if limit <= 0 {
		limit = 5
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limit)*h.maxUploadBytes()+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		h.formError(c, err, "multipart form is required")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "files are required", nil)
		return
	}
	if len(headers) > limit {
		respond.Error(c, http.StatusBadRequest, "batch_too_large", fmt.Sprintf("at most %d files per batch", limit), nil)
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", gin.H{"fileName": fh.Filename})
			return
		}
		uploads = append(uploads, Upload{Filename: fh.Filename, Data: data})
	}

	results, err := h.Svc.BatchUpload(requestContext(c), userID, uploads)
	if err != nil {
		h.writeError(c, err)
		return
	}
	items := make([]BatchItemResponse, 0, len(results))
	accepted := 0
	for _, res := range results {
		item := BatchItemResponse{FileName: res.Filename}
		if res.Document != nil {
			up := toUploadResponse(*res.Document)
			item.Document = &up
		}
		if res.Err != nil {
			_, code, msg := classifyError(res.Err)
			item.Error = &BatchItemError{Code: code, Message: msg}
		} else {
			accepted++
		}
		items = append(items, item)
	}
	respond.JSON(c, http.StatusMultiStatus, gin.H{
		"items":    items,
		"accepted": accepted,
		"rejected": len(items) - accepted,
	})
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	q := ListQuery{Status: Status(strings.ToLower(strings.TrimSpace(c.Query("status"))))}
	if v := c.Query("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "page must be a positive integer", nil)
			return
		}
		q.Page = parsed
	}
	if v := c.Query("page_size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxPageSize {
			respond.Error(c, http.StatusBadRequest, "validation_error", fmt.Sprintf("page_size must be between 1 and %d", maxPageSize), nil)
			return
		}
		q.PageSize = parsed
	}
	q = q.normalized()

	docs, total, err := h.Svc.List(requestContext(c), userID, q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toResponse(doc))
	}
	respond.OK(c, ListResponse{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize})
}

func (h *Handler) get(c *gin.Context) {
	id := h.documentID(c)
	doc, err := h.Svc.Get(requestContext(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) content(c *gin.Context) {
	id := h.documentID(c)
	doc, text, err := h.Svc.Content(requestContext(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		if errors.Is(err, ErrNotReady) {
			respond.Error(c, http.StatusConflict, "not_ready", "document content is not available yet", gin.H{"status": string(doc.Status)})
			return
		}
		h.writeError(c, err)
		return
	}
	respond.OK(c, ContentResponse{DocumentID: doc.ID, Content: text, WordCount: len(strings.Fields(text))})
}

func (h *Handler) download(c *gin.Context) {
	id := h.documentID(c)
	doc, body, err := h.Svc.Download(requestContext(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalFilename))
	c.DataFromReader(http.StatusOK, doc.FileSize, doc.MimeType, body, nil)
}

func (h *Handler) analytics(c *gin.Context) {
	id := h.documentID(c)
	a, err := h.Svc.Analytics(requestContext(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toAnalyticsResponse(a))
}

type patchRequest struct {
	Tags       *[]string `json:"tags"`
	Notes      *string   `json:"notes"`
	IsFavorite *bool     `json:"isFavorite"`
}

func (h *Handler) patch(c *gin.Context) {
	id := h.documentID(c)
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	doc, err := h.Svc.Patch(requestContext(c), middleware.UserIDFromContext(c), id, PatchInput{
		Tags:       req.Tags,
		Notes:      req.Notes,
		IsFavorite: req.IsFavorite,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) delete(c *gin.Context) {
	id := h.documentID(c)
	if err := h.Svc.Delete(requestContext(c), middleware.UserIDFromContext(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, "->deleted")
	c.Status(http.StatusNoContent)
}

func (h *Handler) reprocess(c *gin.Context) {
	id := h.documentID(c)
	doc, err := h.Svc.Reprocess(requestContext(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.Accepted(c, gin.H{"documentId": doc.ID, "status": string(doc.Status), "scheduled": true})
}

type searchRequest struct {
	Query    string `json:"query"`
	PageSize int    `json:"pageSize"`
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	docs, err := h.Svc.Search(requestContext(c), middleware.UserIDFromContext(c), req.Query, req.PageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toResponse(doc))
	}
	respond.OK(c, gin.H{"query": strings.TrimSpace(req.Query), "items": items, "total": len(items)})
}

type similarRequest struct {
	TopK          int     `json:"topK"`
	MinSimilarity float64 `json:"minSimilarity"`
}

func (h *Handler) similar(c *gin.Context) {
	id := h.documentID(c)
	var req similarRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	matches, err := h.Svc.Similar(requestContext(c), middleware.UserIDFromContext(c), id, req.TopK, req.MinSimilarity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	items := make([]MatchResponse, 0, len(matches))
	for _, m := range matches {
		items = append(items, MatchResponse{Document: toResponse(m.Document), Similarity: m.Similarity})
	}
	respond.OK(c, gin.H{"documentId": id, "items": items})
}

func (h *Handler) documentID(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("id"))
	c.Set(middleware.DocumentIDKey, id)
	return id
}

func (h *Handler) formError(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "upload exceeds the size limit", gin.H{"maxBytes": h.maxUploadBytes()})
		return
	}
	respond.Error(c, http.StatusBadRequest, "validation_error", msg, nil)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, code, msg := classifyError(err)
	respond.Error(c, status, code, msg, nil)
}

// classifyError maps service errors to an HTTP status, code and message.
// Internal error text is never echoed to the client.
func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return http.StatusBadRequest, "unsupported_type", "file type is not supported"
	case errors.Is(err, ErrInvalidFileName):
		return http.StatusBadRequest, "invalid_file_name", "file name is not valid"
	case errors.Is(err, ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge, "file_too_large", "upload exceeds the size limit"
	case errors.Is(err, ErrInfected):
		return http.StatusUnprocessableEntity, "infected", "upload was rejected by the malware scanner"
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusBadRequest, "batch_too_large", err.Error()
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found", "document not found"
	case errors.Is(err, ErrNotReady):
		return http.StatusConflict, "not_ready", "document is not ready"
	case errors.Is(err, ErrNoEmbedding):
		return http.StatusConflict, "no_embedding", "document has no embedding yet"
	case errors.Is(err, ErrExtractionInProgress):
		return http.StatusConflict, "in_progress", "document is being processed"
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, "conflict", "document was modified concurrently"
	case errors.Is(err, ErrScheduleFailed):
		return http.StatusServiceUnavailable, "schedule_failed", "failed to schedule processing"
	default:
		return http.StatusInternalServerError, "internal_error", "request failed"
	}
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}
