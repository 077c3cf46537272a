package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码：与错误分类一一对应，调用方可做机器判断
const (
	CodeInsufficientBalance = 1001
	CodeContestNotFound     = 1002
	CodeContestNotOpen      = 1003
	CodeContestFull         = 1004
	CodeDuplicateEntry      = 1005
	CodeAlreadySettled      = 1006
	CodeInvalidSignature    = 1007
	CodeTransactionNotFound = 1008
	CodeContestStateInvalid = 1009
	CodeWithdrawalFailed    = 1010
	CodeUserNotFound        = 1011
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

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// Unauthorized 签名校验失败等场景，直接返回 401，不进入业务处理
func Unauthorized(c *gin.Context, code int, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Code:    code,
		Message: message,
	})
}
