package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/telemetry"
)

const defaultMaxBodySize = 1 << 20

// HandlerFunc is an endpoint body. A nil result with a nil error renders 204.
type HandlerFunc func(ctx context.Context, r *http.Request) (interface{}, error)

type handlerConfig struct {
	status      int
	maxBodySize int64
}

type HandlerOption func(*handlerConfig)

// WithStatus sets the success status code.
func WithStatus(status int) HandlerOption {
	return func(c *handlerConfig) { c.status = status }
}

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	validator  *validator.Validate
	tracer     trace.Tracer
	logger     *zap.Logger
	apiVersion string
}

func NewBaseHandler(apiVersion string, logger *zap.Logger) *BaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &BaseHandler{
		validator:  v,
		tracer:     telemetry.Tracer("api.rest"),
		logger:     logger,
		apiVersion: apiVersion,
	}
}

// Wrap adapts fn to http.HandlerFunc, adding a span and the response envelope.
func (h *BaseHandler) Wrap(name string, fn HandlerFunc, opts ...HandlerOption) http.HandlerFunc {
	cfg := &handlerConfig{status: http.StatusOK, maxBodySize: defaultMaxBodySize}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), h.tracer, "http."+name,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.Pattern),
		)
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, cfg.maxBodySize)
		res, err := fn(ctx, r.WithContext(ctx))
		if err != nil {
			telemetry.RecordError(span, err)
			h.writeError(ctx, w, err)
			return
		}
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeSuccess(ctx, w, cfg.status, res)
	}
}

// decode parses a JSON body into v and validates it.
func (h *BaseHandler) decode(r *http.Request, v interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return &ValidationError{Message: "Content-Type must be application/json"}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return &ValidationError{Message: fmt.Sprintf("Request body too large (max %d bytes)", maxErr.Limit)}
		}
		return &ValidationError{Message: "Invalid JSON"}
	}

	if err := h.validator.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to our format
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return &ValidationError{Message: "Validation error"}
	}

	fields := make(map[string][]string)
	for _, fe := range validationErrors {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required"
		case "max":
			msg = fmt.Sprintf("Maximum length is %s", fe.Param())
		case "uuid":
			msg = "Must be a valid UUID"
		case "oneof":
			msg = fmt.Sprintf("Must be one of: %s", fe.Param())
		default:
			msg = fmt.Sprintf("Failed %s validation", fe.Tag())
		}
		fields[fe.Field()] = append(fields[fe.Field()], msg)
	}
	return &ValidationError{Message: "Validation failed", Fields: fields}
}

func (h *BaseHandler) writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    h.meta(ctx),
	})
}

func (h *BaseHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	m := mapError(err)
	if m.status >= http.StatusInternalServerError {
		telemetry.WithTrace(ctx, h.logger).Error("request failed",
			zap.Int("status", m.status),
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		m.body.TraceID = sc.TraceID().String()
	}
	if m.retryAfter != "" {
		w.Header().Set("Retry-After", m.retryAfter)
	}
	body := m.body
	h.writeJSON(w, m.status, ResponseEnvelope{
		Success: false,
		Error:   &body,
		Meta:    h.meta(ctx),
	})
}

func (h *BaseHandler) meta(ctx context.Context) ResponseMeta {
	return ResponseMeta{
		RequestID: requestIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
		Version:   h.apiVersion,
	}
}

// writeJSON writes JSON response with proper headers
func (h *BaseHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}
