package handler

import (
	"errors"
	"net/http"

	"github.com/bilimevi/contractgate/backend/middleware"
	"github.com/bilimevi/contractgate/backend/model"
	"github.com/bilimevi/contractgate/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// respondWithError maps err to a status and JSON body. Errors that are not
// *model.AppError are logged and reported as a generic 500.
func respondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	resp := ErrorResponse{RequestID: middleware.GetRequestID(c)}
	status := http.StatusInternalServerError

	var appErr *model.AppError
	if errors.As(err, &appErr) {
		status = appErr.Kind.HTTPStatus()
		resp.Error = appErr.Message
		resp.Detail = appErr.Detail
	} else {
		resp.Error = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "status", status, "error", err)
	}

	c.AbortWithStatusJSON(status, resp)
}
