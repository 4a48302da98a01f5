package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/BDNK1/wizflow/runtime"
	"github.com/BDNK1/wizflow/runtime/plugin"
	"github.com/go-resty/resty/v2"
)

// Config holds the HTTP plugin configuration with declarative tags
type Config struct {
	BaseURL     string            `yaml:"base_url" validate:"required,url_format"`
	Timeout     time.Duration     `yaml:"timeout" default:"10s" validate:"gte=1s"`
	MaxRetries  int               `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	Debug       bool              `yaml:"debug" default:"false"`
	RetryWaitMS int               `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Headers     map[string]string `yaml:"headers"`
	// Keys limits the lookups this service answers. Empty means every key.
	Keys []string `yaml:"keys"`
	// Params names the answers forwarded as query parameters.
	Params []string `yaml:"params"`
}

// OptionsResponse is the body returned by GET {base_url}/reference/{key}.
type OptionsResponse struct {
	Options []plugin.Option `json:"options"`
}

// HTTPPlugin fetches reference data option lists from a remote service.
type HTTPPlugin struct {
	Config Config // Exported so CLI can set it during initialization
	client *resty.Client
	l      *slog.Logger
}

func New(cfg Config, l *slog.Logger) *HTTPPlugin {
	return &HTTPPlugin{Config: cfg, l: l}
}

// Initialize implements the plugin.Initializer interface
// Config is already validated by the framework before this is called
func (h *HTTPPlugin) Initialize(ctx context.Context) error {
	h.client = resty.New().
		SetBaseURL(strings.TrimRight(h.Config.BaseURL, "/")).
		SetTimeout(h.Config.Timeout).
		SetRetryCount(h.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(h.Config.RetryWaitMS)*time.Millisecond).
		SetHeaders(h.Config.Headers).
		SetHeader("Accept", "application/json").
		SetDebug(h.Config.Debug).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return nil
}

// Shutdown implements the plugin.Shutdowner interface
func (h *HTTPPlugin) Shutdown(ctx context.Context) error {
	h.client = nil
	return nil
}

func (h *HTTPPlugin) ReferenceLookup() plugin.ReferenceDataLookup { return h }

// Fetch implements plugin.ReferenceDataLookup. Keys outside Config.Keys,
// and keys the service answers with 404, report runtime.ErrUnknownLookup
// so a chained lookup can try the next source.
func (h *HTTPPlugin) Fetch(ctx context.Context, key string, s *plugin.Session) ([]plugin.Option, error) {
	if len(h.Config.Keys) > 0 && !slices.Contains(h.Config.Keys, key) {
		return nil, fmt.Errorf("%w: %q", runtime.ErrUnknownLookup, key)
	}
	if h.client == nil {
		return nil, errors.New("http lookup is not initialized")
	}

	var result OptionsResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetPathParam("key", key).
		SetQueryParams(h.queryParams(s)).
		SetResult(&result).
		Get("/reference/{key}")
	if err != nil {
		return nil, fmt.Errorf("reference request %q failed: %w", key, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %q", runtime.ErrUnknownLookup, key)
	case resp.IsError():
		return nil, fmt.Errorf("reference request %q: %s", key, resp.Status())
	}

	h.l.DebugContext(ctx, fmt.Sprintf("Fetched %d options for %s", len(result.Options), key),
		"status", resp.StatusCode(),
		"duration", resp.Time())

	return result.Options, nil
}

// queryParams selects the configured answers and flattens nested values
// into bracketed keys, e.g. abstractionPeriod[start].
func (h *HTTPPlugin) queryParams(s *plugin.Session) map[string]string {
	params := map[string]string{}
	if s == nil {
		return params
	}

	selected := make(map[string]any, len(h.Config.Params))
	for _, name := range h.Config.Params {
		if v, ok := s.Answers[name]; ok {
			selected[name] = v
		}
	}
	for k, v := range flattenToFormData(selected, "") {
		params[k] = v
	}
	params["journey"] = s.JourneyType
	return params
}

// flattenToFormData converts nested maps and slices into form-style keys:
// {"a": {"b": 1}} becomes {"a[b]": "1"} and {"c": ["x"]} becomes {"c[0]": "x"}.
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	result := make(map[string]string)

	for k, v := range data {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}
		flattenValue(result, name, v)
	}
	return result
}

func flattenValue(result map[string]string, name string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, val := range flattenToFormData(v, name) {
			result[k] = val
		}
	case runtime.Item:
		flattenValue(result, name, map[string]any(v))
	case []any:
		for i, val := range v {
			flattenValue(result, fmt.Sprintf("%s[%d]", name, i), val)
		}
	case []string:
		for i, val := range v {
			result[fmt.Sprintf("%s[%d]", name, i)] = val
		}
	default:
		result[name] = runtime.ToStringValueMap(map[string]any{name: v})[name]
	}
}
