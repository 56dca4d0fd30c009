package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ecphub/backend/internal/domain"
)

// Success 成功响应（200），payload 字段与 success 平铺在同一层
func Success(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Fail 失败响应，detail 携带错误文本
func Fail(c *gin.Context, httpCode int, detail string) {
	c.AbortWithStatusJSON(httpCode, gin.H{
		"success": false,
		"detail":  detail,
	})
}

// UnprocessableEntity 请求校验失败（422）
func UnprocessableEntity(c *gin.Context, err error) {
	Fail(c, http.StatusUnprocessableEntity, err.Error())
}

// InternalError 处理失败（500）
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	Fail(c, http.StatusInternalServerError, err.Error())
}

// ServiceError 按错误类型选择状态码
//
// 流水线的所有失败（标签不存在、没有候选邮件、解析失败、传输错误）统一返回 500，
// 只有手工录入的数据校验失败返回 422。
func ServiceError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidEvent) {
		UnprocessableEntity(c, err)
		return
	}
	InternalError(c, err)
}
