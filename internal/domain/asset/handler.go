package asset

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"commerce/internal/logger"
	"commerce/internal/pkg/imageproc"
	"commerce/internal/pkg/response"
	"commerce/internal/tenant"
)

// Handler maps HTTP requests 1:1 onto Service calls. Requests must have
// passed the channel scope middleware.
type Handler struct {
	svc *Service
	hub *Hub
	log *logger.Log
}

func NewHandler(svc *Service, hub *Hub, log *logger.Log) *Handler {
	if log == nil {
		log = logger.Get()
	}
	return &Handler{svc: svc, hub: hub, log: log.WithEntryName("AssetHandler")}
}

// Upload godoc
// @Summary Upload an asset
// @Tags Assets
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param X-Channel-ID header int true "Channel"
// @Param file formData file true "File to upload"
// @Success 201 {object} map[string]interface{}
// @Failure 400,413,500 {object} map[string]interface{}
// @Router /assets [post]
func (h *Handler) Upload(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, ErrNoFileUploaded)
		return
	}
	f, err := readFormFile(fh)
	if err != nil {
		writeError(c, err)
		return
	}

	fields, err := h.svc.Upload(c.Request.Context(), scope, f)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, fields)
}

// UploadMany godoc
// @Summary Upload several assets atomically
// @Tags Assets
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Files to upload"
// @Success 201 {object} map[string]interface{}
// @Router /assets/batch [post]
func (h *Handler) UploadMany(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, ErrNoFileUploaded)
		return
	}
	headers := form.File["files"]
	files := make([]*File, 0, len(headers))
	for _, fh := range headers {
		f, err := readFormFile(fh)
		if err != nil {
			writeError(c, err)
			return
		}
		files = append(files, f)
	}

	out, err := h.svc.UploadMany(c.Request.Context(), scope, files)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

// List godoc
// @Summary List assets of the channel
// @Tags Assets
// @Produce json
// @Security BearerAuth
// @Param take query int false "Page size (max 100)"
// @Param skip query int false "Offset"
// @Param type query string false "IMAGE, VIDEO, AUDIO or BINARY"
// @Param q query string false "Search in names"
// @Success 200 {object} map[string]interface{}
// @Router /assets [get]
func (h *Handler) List(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	page, err := h.svc.FindMany(c.Request.Context(), scope, ListParams{
		Take:   c.Query("take"),
		Skip:   c.Query("skip"),
		Type:   c.Query("type"),
		Search: c.Query("q"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

func (h *Handler) GetByID(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	fields, err := h.svc.FindByID(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, fields)
}

// Content streams the stored primary file.
func (h *Handler) Content(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	data, fields, err := h.svc.Read(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", fields.Name))
	c.Header("ETag", `"`+fields.Checksum+`"`)
	c.Data(http.StatusOK, fields.MimeType, data)
}

func (h *Handler) Update(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	fields, err := h.svc.Update(c.Request.Context(), scope, c.Param("id"), UpdateInput{
		OriginalName:    req.OriginalName,
		FocalPoint:      req.FocalPoint,
		ClearFocalPoint: req.ClearFocalPoint,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, fields)
}

// Delete godoc
// @Summary Delete an asset (files + record), or soft-delete it with ?soft=true
// @Tags Assets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Asset ID"
// @Param soft query bool false "Soft delete"
// @Success 200 {object} map[string]interface{}
// @Failure 404,409,500 {object} map[string]interface{}
// @Router /assets/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var (
		fields Fields
		err    error
	)
	if c.Query("soft") == "true" {
		fields, err = h.svc.SoftDelete(c.Request.Context(), scope, c.Param("id"))
	} else {
		fields, err = h.svc.Delete(c.Request.Context(), scope, c.Param("id"))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, fields)
}

func (h *Handler) Recover(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	fields, err := h.svc.Recover(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, fields)
}

// DeleteMany answers 207 when only some of the ids could be deleted. When
// none could, the status of the failures is used instead.
func (h *Handler) DeleteMany(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	var req DeleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	deleted, err := h.svc.DeleteMany(c.Request.Context(), scope, req.IDs)
	var (
		bulkErr    *BulkDeleteError
		cleanupErr *FileCleanupError
	)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, DeleteManyResponse{Deleted: deleted})
	case errors.As(err, &cleanupErr):
		h.log.WithErr(err).Warn("bulk delete left files in storage")
		response.Success(c, http.StatusOK, DeleteManyResponse{Deleted: deleted, FilesLeft: cleanupErr.IDs()})
	case errors.As(err, &bulkErr):
		failed, status, code := deleteFailures(bulkErr)
		if len(deleted) == 0 {
			if status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			response.ErrorWithDetails(c, status, code, "none of the requested assets were deleted", failed)
			return
		}
		response.Success(c, http.StatusMultiStatus, DeleteManyResponse{Deleted: deleted, Failed: failed})
	default:
		writeError(c, err)
	}
}

// deleteFailures lists failures sorted by id together with the status and
// code of the most severe one.
func deleteFailures(bulkErr *BulkDeleteError) ([]DeleteFailure, int, string) {
	failed := make([]DeleteFailure, 0, len(bulkErr.Failures))
	worst, worstCode := 0, ""
	for id, ferr := range bulkErr.Failures {
		status, code, msg := classifyError(ferr)
		if status > worst || (status == worst && code < worstCode) {
			worst, worstCode = status, code
		}
		failed = append(failed, DeleteFailure{ID: id, Code: code, Message: msg})
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	return failed, worst, worstCode
}

// Events upgrades to a websocket that streams asset changes of the channel.
func (h *Handler) Events(c *gin.Context) {
	scope, ok := mustScope(c)
	if !ok {
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, scope.ChannelID); err != nil {
		h.log.WithErr(err).Warn("websocket upgrade failed")
	}
}

func mustScope(c *gin.Context) (tenant.Scope, bool) {
	scope, ok := tenant.FromContext(c.Request.Context())
	if !ok || !scope.Valid() {
		response.Error(c, http.StatusForbidden, "NO_CHANNEL", "channel scope is required")
		return tenant.Scope{}, false
	}
	return scope, true
}

func readFormFile(fh *multipart.FileHeader) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	return &File{Buffer: buf, Filename: fh.Filename}, nil
}

func writeError(c *gin.Context, err error) {
	status, code, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		response.ErrorWithDetails(c, status, code, msg, verr.Fields)
		return
	}
	response.Error(c, status, code, msg)
}

func classifyError(err error) (int, string, string) {
	var (
		verr    *ValidationError
		tooBig  *FileTooLargeError
		bulkErr *BulkDeleteError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "VALIDATION_ERROR", verr.Error()
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", tooBig.Error()
	case errors.As(err, &bulkErr):
		return http.StatusMultiStatus, "PARTIAL_FAILURE", bulkErr.Error()
	case errors.Is(err, ErrNoFileUploaded):
		return http.StatusBadRequest, "NO_FILE", err.Error()
	case errors.Is(err, ErrInvalidPagination):
		return http.StatusBadRequest, "INVALID_PAGINATION", err.Error()
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoChannel):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, ErrUnsupportedContent), errors.Is(err, imageproc.ErrUnsupportedImage):
		return http.StatusBadRequest, "UNSUPPORTED_CONTENT", err.Error()
	case errors.Is(err, imageproc.ErrImageProcessing):
		return http.StatusUnprocessableEntity, "IMAGE_PROCESSING_FAILED", err.Error()
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStorageObjectNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, ErrNameCollision):
		return http.StatusConflict, "NAME_COLLISION", err.Error()
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, "INVALID_STATE", err.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "asset operation failed"
	}
}
