package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HTTPHandler exposes an Engine over gin.
type HTTPHandler struct {
	l         *slog.Logger
	engine    *Engine
	responses *ResponseHandlerRegistry
}

func NewHTTPHandler(l *slog.Logger, engine *Engine, responses *ResponseHandlerRegistry) *HTTPHandler {
	if responses == nil {
		responses = NewResponseHandlerRegistry()
	}
	return &HTTPHandler{l: l, engine: engine, responses: responses}
}

// Register mounts the journey routes on g. POST routes pass through the
// optional middleware (e.g. rate limiting).
func (h *HTTPHandler) Register(g gin.IRouter, postMiddleware ...gin.HandlerFunc) {
	r := g.Group(JourneysPrefix)

	post := func(path string, handlers ...gin.HandlerFunc) {
		r.POST(path, append(append([]gin.HandlerFunc{}, postMiddleware...), handlers...)...)
	}
	session := func(path string, handler gin.HandlerFunc) {
		post(path, h.matchJourney, handler)
	}

	r.GET("", h.listJourneys)
	post("/:journey", h.start)

	r.GET("/:journey/:sessionId/:step", h.matchJourney, h.view)
	r.GET("/:journey/:sessionId/:step/:index", h.matchJourney, h.view)
	session("/:journey/:sessionId/:step", h.submit)
	session("/:journey/:sessionId/:step/:index", h.submit)

	session("/:journey/:sessionId/items", h.addItem)
	session("/:journey/:sessionId/items/:index/remove", h.removeItem)
	session("/:journey/:sessionId/cancel", h.cancel)
	session("/:journey/:sessionId/confirm", h.confirm)
}

// matchJourney answers 404 when the session belongs to a journey other
// than the one named in the path.
func (h *HTTPHandler) matchJourney(c *gin.Context) {
	journey, sessionID := c.Param("journey"), c.Param("sessionId")

	actual, err := h.engine.JourneyOf(c.Request.Context(), sessionID)
	if err == nil && actual != journey {
		err = fmt.Errorf("session is not part of journey %s: %w", journey, &NotFoundError{SessionID: sessionID})
	}
	if err != nil {
		h.fail(c, err, journey, c.Param("step"), sessionID)
		c.Abort()
		return
	}
	c.Next()
}

func (h *HTTPHandler) listJourneys(c *gin.Context) {
	type journeySummary struct {
		ID      string   `json:"id"`
		Title   string   `json:"title,omitempty"`
		Summary string   `json:"summary,omitempty"`
		Steps   []string `json:"steps"`
	}

	var out []journeySummary
	for _, j := range h.engine.Registry().Journeys() {
		out = append(out, journeySummary{ID: j.ID, Title: j.Title, Summary: j.Summary, Steps: j.Steps})
	}
	h.respond(c, ResponseJSON, map[string]any{"body": out})
}

func (h *HTTPHandler) start(c *gin.Context) {
	journey := c.Param("journey")

	var seed map[string]any
	if isJSON(c) && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&seed); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
			return
		}
	} else if err := c.Request.ParseForm(); err == nil {
		seed = map[string]any(PayloadFromValues(c.Request.PostForm))
	}

	s, first, err := h.engine.Start(c.Request.Context(), journey, seed)
	if err != nil {
		h.fail(c, err, journey, "", "")
		return
	}

	h.respond(c, ResponseRedirect, map[string]any{
		"location": StepPath(s.JourneyType, s.ID, first, NoIndex),
		"headers":  map[string]string{"X-Session-Id": s.ID},
	})
}

func (h *HTTPHandler) view(c *gin.Context) {
	journey, sessionID, step := c.Param("journey"), c.Param("sessionId"), c.Param("step")

	index, err := ParseIndex(c.Param("index"))
	if err != nil {
		h.badRequest(c, err, journey, step, sessionID)
		return
	}

	view, err := h.engine.ViewStep(c.Request.Context(), step, sessionID, index)
	if err != nil {
		h.fail(c, err, journey, step, sessionID)
		return
	}

	h.respond(c, ResponseJSON, map[string]any{"body": view})
}

func (h *HTTPHandler) submit(c *gin.Context) {
	journey, sessionID, step := c.Param("journey"), c.Param("sessionId"), c.Param("step")

	index, err := ParseIndex(c.Param("index"))
	if err != nil {
		h.badRequest(c, err, journey, step, sessionID)
		return
	}

	payload, err := readPayload(c)
	if err != nil {
		h.badRequest(c, err, journey, step, sessionID)
		return
	}

	result, err := h.engine.SubmitStep(c.Request.Context(), step, sessionID, index, payload)
	if err != nil {
		h.fail(c, err, journey, step, sessionID)
		return
	}

	if !result.Success {
		h.respond(c, ResponseJSON, map[string]any{
			"status": http.StatusUnprocessableEntity,
			"body":   result,
		})
		return
	}

	location := ActionPath(result.Journey, sessionID, "confirm")
	if result.NextStep != "" {
		location = StepPath(result.Journey, sessionID, result.NextStep, result.NextIndex)
	}
	h.respond(c, ResponseRedirect, map[string]any{"location": location})
}

func (h *HTTPHandler) addItem(c *gin.Context) {
	journey, sessionID := c.Param("journey"), c.Param("sessionId")

	payload, err := readPayload(c)
	if err != nil {
		h.badRequest(c, err, journey, "", sessionID)
		return
	}

	// "step" names the indexed step to open for the new item. Item fields
	// are only ever written by submitting that step.
	step := payload.String("step")

	index, err := h.engine.AddItem(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err, journey, "", sessionID)
		return
	}

	if step != "" {
		h.respond(c, ResponseRedirect, map[string]any{"location": StepPath(journey, sessionID, step, index)})
		return
	}
	h.respond(c, ResponseJSON, map[string]any{
		"status": http.StatusCreated,
		"body":   gin.H{"index": index},
	})
}

func (h *HTTPHandler) removeItem(c *gin.Context) {
	journey, sessionID := c.Param("journey"), c.Param("sessionId")

	index, err := ParseIndex(c.Param("index"))
	if err != nil {
		h.badRequest(c, err, journey, "", sessionID)
		return
	}

	if err := h.engine.RemoveItem(c.Request.Context(), sessionID, index); err != nil {
		h.fail(c, err, journey, "", sessionID)
		return
	}

	if j, err := h.engine.Registry().Journey(journey); err == nil && j.Summary != "" {
		h.respond(c, ResponseRedirect, map[string]any{"location": StepPath(journey, sessionID, j.Summary, NoIndex)})
		return
	}
	h.respond(c, ResponseJSON, map[string]any{"body": gin.H{"status": "removed"}})
}

func (h *HTTPHandler) cancel(c *gin.Context) {
	journey, sessionID := c.Param("journey"), c.Param("sessionId")

	if err := h.engine.Cancel(c.Request.Context(), sessionID); err != nil {
		h.fail(c, err, journey, "", sessionID)
		return
	}
	h.respond(c, ResponseJSON, map[string]any{"body": gin.H{"status": "cancelled"}})
}

func (h *HTTPHandler) confirm(c *gin.Context) {
	journey, sessionID := c.Param("journey"), c.Param("sessionId")

	if err := h.engine.Complete(c.Request.Context(), sessionID); err != nil {
		h.fail(c, err, journey, "", sessionID)
		return
	}
	h.respond(c, ResponseJSON, map[string]any{"body": gin.H{"status": "completed"}})
}

func (h *HTTPHandler) respond(c *gin.Context, kind string, args map[string]any) {
	handler, ok := h.responses.Get(kind)
	if !ok {
		h.l.Error("Response handler not found", "type", kind, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Unknown response type: " + kind})
		return
	}

	if err := handler.Handle(c, args); err != nil {
		h.l.Error("Response handler execution failed",
			"type", kind,
			"path", c.Request.URL.Path,
			"error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error generating response: " + err.Error()})
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error, journey, step, sessionID string) {
	we := ToWizardError(err, journey, step, sessionID)

	if we.StatusCode() >= http.StatusInternalServerError {
		h.l.ErrorContext(c.Request.Context(), "Wizard request failed",
			"journey", journey,
			"step", step,
			"session_id", sessionID,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err.Error())
	}

	h.respond(c, ResponseJSON, map[string]any{"status": we.StatusCode(), "body": we})
}

func (h *HTTPHandler) badRequest(c *gin.Context, err error, journey, step, sessionID string) {
	h.fail(c, &WizardError{
		Type:      ErrorTypeIntegrity,
		Code:      ErrorCodeBadRequest,
		Message:   err.Error(),
		Journey:   journey,
		Step:      step,
		SessionID: sessionID,
		Cause:     err,
	}, journey, step, sessionID)
}

var errBodyFormat = errors.New("wrong request body format")

// readPayload accepts a JSON object or url-encoded/multipart form values.
func readPayload(c *gin.Context) (Payload, error) {
	if isJSON(c) {
		if c.Request.ContentLength == 0 {
			return Payload{}, nil
		}
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", errBodyFormat, err)
		}
		return PayloadFromJSON(body), nil
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("%w: %v", errBodyFormat, err)
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", errBodyFormat, err)
	}
	return PayloadFromValues(c.Request.PostForm), nil
}

func isJSON(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEJSON
}
