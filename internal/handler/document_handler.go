package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/pdfmeta"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
)

const (
	uploadField       = "document"
	multipartOverhead = 1 << 20
	sniffLength       = 512
)

type DocumentHandler struct {
	ingest       *service.IngestService
	query        *service.QueryService
	uploads      *filestore.LocalStore
	maxSize      int64
	allowedTypes map[string]struct{}
}

func NewDocumentHandler(ingest *service.IngestService, query *service.QueryService, uploads *filestore.LocalStore, maxSize int64, allowedTypes []string) *DocumentHandler {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &DocumentHandler{
		ingest:       ingest,
		query:        query,
		uploads:      uploads,
		maxSize:      maxSize,
		allowedTypes: allowed,
	}
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.ingest.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingest.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, doc)
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	tooLarge := "file too large (max " + formatUploadLimit(h.maxSize) + ")"
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	file, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, tooLarge)
			return
		}
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "no file uploaded")
		return
	}
	if file.Size > h.maxSize {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, tooLarge)
		return
	}
	declared := mediaType(file.Header.Get("Content-Type"))
	if !h.allowed(declared) {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "unsupported file type")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	sniffed, err := sniffContentType(opened)
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to read file")
		return
	}
	if sniffed != declared {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "file content does not match its type")
		return
	}

	logger := logutil.GetLogger(ctx).With(zap.String("filename", file.Filename))
	pages := 0
	if declared == "application/pdf" {
		if pages, err = pdfmeta.PageCount(opened); err != nil {
			logger.Debug("page count unavailable", zap.Error(err))
		}
	}

	key := buildFileKey(file.Filename)
	if err := h.uploads.Save(ctx, key, opened, file.Size); err != nil {
		logger.Error("store upload failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrUploadFailed, "failed to upload document")
		return
	}
	path, err := h.uploads.Path(key)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, errcode.ErrUploadFailed, "failed to upload document")
		return
	}
	doc, err := h.ingest.Ingest(ctx, service.IngestInput{
		Name:      filepath.Base(file.Filename),
		Filename:  key,
		Filepath:  path,
		Size:      file.Size,
		MimeType:  declared,
		PageCount: pages,
	})
	if err != nil {
		if rmErr := h.uploads.Remove(key); rmErr != nil {
			logger.Warn("remove orphaned upload failed", zap.String("key", key), zap.Error(rmErr))
		}
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, doc)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "question is required")
		return
	}
	answer, err := h.query.Answer(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, answer)
}

func (h *DocumentHandler) Conversations(c *gin.Context) {
	convs, err := h.query.ListConversations(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, convs)
}

func (h *DocumentHandler) allowed(contentType string) bool {
	_, ok := h.allowedTypes[contentType]
	return ok
}

func mediaType(value string) string {
	parsed, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return strings.ToLower(parsed)
}

func sniffContentType(r io.ReadSeeker) (string, error) {
	buf := make([]byte, sniffLength)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	head := buf[:read]
	if pdfmeta.LooksLikePDF(head) {
		return "application/pdf", nil
	}
	return mediaType(http.DetectContentType(head)), nil
}
