package apperr

import (
	"errors"
	"io"

	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/pkg/httpmiddleware"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Respond 把错误写成 {"error": msg} 响应。5xx 错误会记录日志，内部细节不返回给客户端。
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= 500 {
		httpmiddleware.LoggerFrom(c, logger.Nop()).
			WithError(models.ErrorInfo{Message: err.Error(), Type: KindOf(FromDB(err)).String(), StatusCode: status}).
			Error("request failed with server error")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": Message(err)})
}

// Binding 把 gin 绑定/校验失败转换为 Validation 错误。
func Binding(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return Wrap(Validation, err, "字段 "+fe.Field()+" 校验失败: "+fe.Tag())
	}
	if errors.Is(err, io.EOF) {
		return Wrap(Validation, err, "请求体不能为空")
	}
	return Wrap(Validation, err, "请求参数无效")
}

// Bind 绑定 JSON 请求体，失败时直接写 400 响应并返回 false。
func Bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		Respond(c, Binding(err))
		return false
	}
	return true
}
