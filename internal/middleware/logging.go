// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"companion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 这些字段不会出现在日志中。
var redactedFields = []string{"password", "token", "refreshToken"}

const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。请求体与响应体中的密码和 token 会被替换。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", RedactBody(requestBody),
			"responseBody", RedactBody(blw.body.Bytes()),
		)
	}
}

// RedactBody 把 JSON 对象（含一层嵌套的 data 对象）中的敏感字段替换为 ***，非 JSON 内容原样截断返回。
func RedactBody(body []byte) string {
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return truncate(string(body))
	}
	redact(obj)
	if data, ok := obj["data"].(map[string]interface{}); ok {
		redact(data)
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return truncate(string(out))
}

func redact(obj map[string]interface{}) {
	for k := range obj {
		for _, f := range redactedFields {
			if strings.EqualFold(k, f) {
				obj[k] = "***"
			}
		}
	}
}

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
