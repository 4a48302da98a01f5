package runtime

import (
	"github.com/gin-gonic/gin"
)

// Response handler names used by the HTTP boundary.
const (
	ResponseJSON     = "http.json"
	ResponseRedirect = "http.redirect"
)

// ResponseHandler writes one kind of HTTP response from plain arguments.
type ResponseHandler interface {
	Handle(c *gin.Context, args map[string]any) error
}

// ResponseHandlerRegistry maps response kinds to handlers.
type ResponseHandlerRegistry struct {
	handlers map[string]ResponseHandler
}

// NewResponseHandlerRegistry creates a registry with the built-in handlers.
func NewResponseHandlerRegistry() *ResponseHandlerRegistry {
	registry := &ResponseHandlerRegistry{
		handlers: make(map[string]ResponseHandler),
	}

	registry.Register(ResponseJSON, &JSONResponseHandler{})
	registry.Register(ResponseRedirect, &RedirectResponseHandler{})

	return registry
}

// Register adds or replaces a response handler.
func (r *ResponseHandlerRegistry) Register(kind string, handler ResponseHandler) {
	r.handlers[kind] = handler
}

func (r *ResponseHandlerRegistry) Get(kind string) (ResponseHandler, bool) {
	handler, exists := r.handlers[kind]
	return handler, exists
}
