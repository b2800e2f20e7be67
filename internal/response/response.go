package response

import (
	"errors"
	"net/http"

	"port42/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Body 成功响应
type Body struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// ErrorDetail 失败响应中的错误
type ErrorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// Success 200
func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Body{Data: data, Message: message})
}

// Created 201
func Created(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, Body{Data: data, Message: message})
}

// Fail 按错误分类返回状态码，内部错误不暴露细节
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	var e *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &e) {
		msg = e.Message
	}
	if kind == apperr.KindInternal || kind == apperr.KindTransient {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), ErrorBody{Error: ErrorDetail{Kind: kind, Message: msg}})
}

// Abort 直接指定状态码和分类
func Abort(c *gin.Context, status int, kind apperr.Kind, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}
