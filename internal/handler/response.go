// Package handler 提供 HTTP 请求处理
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/middleware"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error 返回业务错误响应
func Error(c *gin.Context, err *dto.BizError) {
	c.JSON(err.HTTPStatus, dto.NewErrorResponse(err))
}

// BadRequest 返回参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, dto.ErrInvalidParams.WithMessage(message))
}

// InternalError 返回内部错误响应
func InternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrInternalError))
}

// handleServiceError 业务错误原样返回，其余只记日志并返回通用错误
func handleServiceError(c *gin.Context, err error) {
	var bizErr *dto.BizError
	if errors.As(err, &bizErr) {
		if bizErr.HTTPStatus >= http.StatusInternalServerError {
			logger.WithContext(c.Request.Context()).Sugar().Warnw("request failed",
				"path", c.FullPath(),
				"error", err,
			)
		}
		Error(c, bizErr)
		return
	}

	logger.WithContext(c.Request.Context()).Sugar().Errorw("internal error",
		"path", c.FullPath(),
		"error", err,
	)
	InternalError(c)
}

// GetFID 从 context 获取登录 fid
func GetFID(c *gin.Context) uint64 {
	return c.GetUint64(middleware.FIDKey)
}

// GetAddress 从 context 获取登录地址
func GetAddress(c *gin.Context) string {
	return c.GetString(middleware.AddressKey)
}
