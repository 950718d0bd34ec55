package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

const notReadyMessage = "document still processing, please try again shortly"

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed")
	} else {
		logger.Info("request rejected")
	}
	response.Error(c, status, code, message)
}

func classify(err error) (int, int, string) {
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		return http.StatusBadRequest, errcode.ErrInvalid, strings.TrimPrefix(err.Error(), appErr.ErrInvalid.Error()+": ")
	case errors.Is(err, appErr.ErrNotFound):
		return http.StatusNotFound, errcode.ErrNotFound, "document not found"
	case errors.Is(err, appErr.ErrNotReady):
		return http.StatusBadRequest, errcode.ErrNotReady, notReadyMessage
	case errors.Is(err, appErr.ErrConflict):
		return http.StatusConflict, errcode.ErrConflict, "conflict"
	case errors.Is(err, appErr.ErrEngine):
		return http.StatusInternalServerError, errcode.ErrEngineFailed, "failed to process question: " + err.Error()
	case errors.Is(err, appErr.ErrStore):
		return http.StatusInternalServerError, errcode.ErrStoreFailed, "storage failure"
	}
	return http.StatusInternalServerError, errcode.ErrInternal, "internal error"
}
