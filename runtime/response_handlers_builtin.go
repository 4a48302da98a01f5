package runtime

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponseHandler writes args["body"] as JSON with args["status"]
// (default 200) and optional args["headers"].
type JSONResponseHandler struct{}

func (h *JSONResponseHandler) Handle(c *gin.Context, args map[string]any) error {
	statusCode := http.StatusOK
	if status, ok := toStatusCode(args["status"]); ok {
		statusCode = status
	}

	setHeaders(c, args)

	body := args["body"]
	if body == nil {
		body = gin.H{}
	}

	c.JSON(statusCode, body)
	return nil
}

// RedirectResponseHandler redirects to args["location"], 302 by default.
type RedirectResponseHandler struct{}

func (h *RedirectResponseHandler) Handle(c *gin.Context, args map[string]any) error {
	location, ok := args["location"].(string)
	if !ok || location == "" {
		return fmt.Errorf("redirect response requires a 'location' argument")
	}

	statusCode := http.StatusFound
	if status, ok := toStatusCode(args["status"]); ok {
		if status < 300 || status >= 400 {
			return fmt.Errorf("redirect status must be 3xx, got %d", status)
		}
		statusCode = status
	}

	setHeaders(c, args)
	c.Redirect(statusCode, location)
	return nil
}

func setHeaders(c *gin.Context, args map[string]any) {
	switch headers := args["headers"].(type) {
	case map[string]string:
		for k, v := range headers {
			c.Header(k, v)
		}
	case map[string]any:
		for k, v := range headers {
			if s, ok := v.(string); ok {
				c.Header(k, s)
			}
		}
	}
}

func toStatusCode(v any) (int, bool) {
	switch s := v.(type) {
	case int:
		return s, true
	case int64:
		return int(s), true
	case float64:
		return int(s), true
	default:
		return 0, false
	}
}
