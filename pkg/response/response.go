package response

import (
	"errors"
	"net/http"

	"bankledger/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess            = 0
	CodeParamError         = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeServerError        = 500
	CodeServiceUnavailable = 503
	CodeBusinessError      = 1000
)

// 业务错误码，对外稳定，不随错误文案变化
const (
	CodeBalanceNotEnough = 1003
	CodeAccountNotFound  = 1005
	CodeAccountInactive  = 1008
	CodeConcurrentUpdate = 1009
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func Unauthenticated(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Classify maps an error kind to its HTTP status and business code.
func Classify(err error) (status, code int) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, CodeAccountNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest, CodeParamError
	case errors.Is(err, model.ErrAccountInactive):
		return http.StatusUnprocessableEntity, CodeAccountInactive
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, CodeBalanceNotEnough
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrDuplicate):
		return http.StatusConflict, CodeConcurrentUpdate
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	}
	return http.StatusInternalServerError, CodeServerError
}

// FromError writes err using Classify. Storage and unknown failures do not
// leak their message to the client.
func FromError(c *gin.Context, err error) {
	status, code := Classify(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = "服务暂不可用，请稍后重试"
	case http.StatusInternalServerError:
		message = "服务器内部错误"
	}
	_ = c.Error(err)
	Error(c, status, code, message)
}
