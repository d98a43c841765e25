package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/annel0/voxel-server/internal/logging"
)

// RequestIDHeader заголовок, в котором клиент может передать свой идентификатор запроса
const RequestIDHeader = "X-Request-ID"

// RequestLogger снабжает каждый HTTP-запрос идентификатором и пишет краткие логи.
type RequestLogger struct {
	logger *logging.Logger
}

func NewRequestLogger() *RequestLogger {
	return &RequestLogger{logger: logging.GetComponentLogger("http")}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rl.logger.Debug("[HTTP] ▶ %s %s ip=%s id=%s", method, path, c.ClientIP(), requestID)

		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			rl.logger.Warn("[HTTP] ◀ %s %s %d %s id=%s", method, path, status, time.Since(start), requestID)
			return
		}
		rl.logger.Debug("[HTTP] ◀ %s %s %d %s id=%s", method, path, status, time.Since(start), requestID)
	}
}
