package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditLog records admin write operations (POST/PUT/DELETE). Bodies are
// never logged: they carry passwords and upload bytes.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= 400 {
			event = log.Warn()
		}
		event.
			Bool("audit", true).
			Str("action", actionFor(method)).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Str("role", GetRole(c)).
			Str("client", ClientIdentity(c.Request)).
			Str("request_id", c.GetString("request_id")).
			Int("status", status).
			Msg(auditOutcome(status))
	}
}

func actionFor(method string) string {
	switch method {
	case "POST":
		return "create"
	case "PUT":
		return "update"
	case "DELETE":
		return "delete"
	}
	return method
}

func auditOutcome(status int) string {
	if status >= 200 && status < 300 {
		return "admin change ok"
	}
	return "admin change failed"
}
