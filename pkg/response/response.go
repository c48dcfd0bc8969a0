package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码，与 service 层的错误一一对应
const (
	CodeInsufficientFunds       = 1001
	CodeCardFrozen              = 1002
	CodeWithdrawalLimitExceeded = 1003
	CodeRecipientNotFound       = 1004
	CodeAccountNotFound         = 1005
	CodeSelfTransferRejected    = 1006
	CodeGoalNotFound            = 1007
	CodeAccountExists           = 1008
	CodeInvalidRole             = 1009
	CodeNotDependent            = 1010
	CodeConflictRetry           = 1011 // 并发冲突，客户端可稍后重试
	CodeStoreUnavailable        = 1012
	CodeTransactionNotFound     = 1013
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

// Error 业务错误同样返回 HTTP 200，由 code 区分
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ParamError 请求格式或参数不合法，返回 HTTP 400
func ParamError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    CodeParamError,
		Message: message,
	})
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
