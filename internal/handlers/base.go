package handlers

import (
	"port42/internal/apperr"
	"port42/internal/response"
	"port42/internal/utils"

	"github.com/gin-gonic/gin"
)

// bindJSON 解析请求体，失败时直接返回 400
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.Fail(c, apperr.Wrap(apperr.KindInvalidArgument, "invalid request body", err))
		return false
	}
	return true
}

// idParam 读取路径中的数字 ID
func idParam(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		response.Fail(c, apperr.InvalidArgument("invalid "+name))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int {
	return utils.StringToInt(c.Query(key))
}
