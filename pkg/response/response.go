package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.social.client/pkg/errors"
)

// Success 成功响应: {"ok": true, "data": ...}
type Success struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data"`
}

// Failure 失败响应: {"ok": false, "status": ..., "message": ...}
// status 为后端（或本地映射）的状态，0 表示网络错误
type Failure struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// OK 成功响应
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Success{OK: true, Data: data})
}

// Raw 成功响应，data 为已编码的 JSON，nil 写为 null
func Raw(c *gin.Context, data json.RawMessage) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, Success{OK: true, Data: data})
}

// Fail 按状态和消息返回失败
func Fail(c *gin.Context, status int, message string) {
	c.JSON(httpStatus(status), Failure{Status: status, Message: message})
}

// Error 从 AppError 生成失败响应，其它错误视为服务器内部错误
func Error(c *gin.Context, err error) {
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		appErr = appErrors.ErrServerError
	}
	c.JSON(httpStatus(appErr.Status), Failure{
		Status:  appErr.Status,
		Message: appErr.Message,
		Code:    appErr.Code,
	})
}

// AbortWithError 写入失败响应并终止后续处理
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// InvalidParams 参数错误
func InvalidParams(c *gin.Context, message string) {
	if message == "" {
		message = appErrors.ErrInvalidParams.Message
	}
	Error(c, appErrors.ErrInvalidParams.WithMessage(message))
}

// httpStatus 选择写回浏览器的 HTTP 状态；网络错误等非法状态映射为 502
func httpStatus(status int) int {
	if status >= 400 && status <= 599 {
		return status
	}
	return http.StatusBadGateway
}
