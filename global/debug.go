package global

import (
	"bytes"
	"io"

	"PPClient/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DebugBody 打印请求体后放回，后续 handler 仍可读取
func DebugBody(c *gin.Context) {
	bodyBytes, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(500, Fail("read body error: "+err.Error()))
		return
	}
	if len(bodyBytes) > 0 {
		logger.Debug("request body", zap.String("path", c.FullPath()), zap.ByteString("body", bodyBytes))
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
}
