package webhook

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/observability/requestid"
	"github.com/ajayykmr/sms-gateway/internal/registry"
)

// DefaultMaxBodyBytes caps the callback body size.
const DefaultMaxBodyBytes int64 = 1 << 20

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithHandlerListeners registers listeners for every provider pipeline.
func WithHandlerListeners(listeners ...Listener) HandlerOption {
	return func(h *Handler) { h.listeners = append(h.listeners, listeners...) }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithDeps sets the dependencies passed to adapter factories.
func WithDeps(deps common.Deps) HandlerOption {
	return func(h *Handler) { h.deps = deps }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler serves GET and POST /{provider}. It is safe for concurrent use;
// adapters are built once per provider and cached.
type Handler struct {
	registry  *registry.Registry
	deps      common.Deps
	listeners []Listener
	logger    zerolog.Logger
	maxBody   int64

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// NewHandler returns a handler resolving providers through reg.
func NewHandler(reg *registry.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:  reg,
		maxBody:   DefaultMaxBodyBytes,
		pipelines: make(map[string]*Pipeline),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if reflect.ValueOf(h.logger).IsZero() {
		h.logger = zerolog.Nop()
	}
	if reflect.ValueOf(h.deps.Logger).IsZero() {
		h.deps.Logger = h.logger
	}
	return h
}

// Routes returns a router to mount under a prefix such as /webhook.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{provider}", h.handleVerify)
	r.Post("/{provider}", h.handleEvent)
	return r
}

func (h *Handler) pipeline(name string) (*Pipeline, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.pipelines[name]; ok {
		return p, nil
	}
	adapter, err := h.registry.Build(name, h.deps)
	if err != nil {
		return nil, err
	}
	p, err := NewPipeline(name, adapter, WithListeners(h.listeners...), WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	h.pipelines[name] = p
	return p, nil
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*Pipeline, bool) {
	provider := chi.URLParam(r, "provider")
	p, err := h.pipeline(provider)
	switch {
	case err == nil:
		return p, true
	case errors.Is(err, ErrNotSupported):
		writeText(w, http.StatusNotFound, "Webhook not supported for this provider")
	case errors.Is(err, errs.ErrConfiguration):
		h.logger.Debug().Str("provider", provider).Err(err).Msg("webhook for unavailable provider")
		writeText(w, http.StatusNotFound, "Provider not found")
	default:
		h.logger.Error().Str("provider", provider).Err(err).Msg("webhook: failed to build adapter")
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
	}
	return nil, false
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}
	challenge, err := p.Handshake(r.URL.Query())
	switch {
	case err == nil:
		writeText(w, http.StatusOK, challenge)
	case errors.Is(err, ErrNoHandshake):
		writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	default:
		writeText(w, http.StatusForbidden, "Forbidden")
	}
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		writeText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	_, err = p.Process(r.Context(), r.Header, body, requestid.FromContext(r.Context()))
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "OK")
	case errors.Is(err, errs.ErrWebhookAuth):
		writeText(w, http.StatusUnauthorized, "Unauthorized")
	default:
		h.logger.Error().Str("provider", p.Provider()).Err(err).Msg("webhook: processing failed")
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
