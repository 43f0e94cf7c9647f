package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/response"
)

// StatusFor maps a typed error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, internal.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, internal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internal.ErrConflict), errors.Is(err, internal.ErrState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func HandleError(c *gin.Context, logger internal.Logger, err error, msg string) {
	requestID := c.GetString("request_id")
	status := StatusFor(err)
	var resp response.APIResponse
	switch status {
	case http.StatusBadRequest:
		logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.BadRequest(msg + ": " + err.Error())
	case http.StatusNotFound:
		logger.Infof("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.NotFound(msg + ": " + err.Error())
	case http.StatusConflict:
		logger.Infof("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.Conflict(internal.CodeOf(err), msg+": "+err.Error())
	default:
		logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
		resp = response.InternalError(msg)
	}
	c.JSON(status, resp)
}

func HandleBadRequest(c *gin.Context, logger internal.Logger, err error, msg string) {
	requestID := c.GetString("request_id")
	logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
	c.JSON(http.StatusBadRequest, response.BadRequest(msg+": "+err.Error()))
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Debugf("[request_id=%s] Success", requestID)
	c.JSON(http.StatusOK, response.Success(data, meta))
}

func HandleCreated(c *gin.Context, logger internal.Logger, data interface{}) {
	requestID := c.GetString("request_id")
	logger.Debugf("[request_id=%s] Created", requestID)
	c.JSON(http.StatusCreated, response.Success(data, nil))
}

// bindOptionalJSON binds the body into dst; an empty body leaves dst as is.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
