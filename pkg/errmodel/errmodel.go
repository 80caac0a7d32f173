package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryTool       = "tool"
	CategoryNetwork    = "network"
	CategoryModel      = "model"
	CategorySystem     = "system"
)

// Codes used by the decide cycle. Backend codes are transport-class: re-prompting
// cannot fix them. Parse and semantic codes are validation-class and earn a retry.
const (
	CodeBackendUnavailable = "backend_unavailable"
	CodeBackendTimeout     = "backend_timeout"
	CodeBackendRateLimited = "backend_rate_limited"
	CodeParseError         = "parse_error"
	CodeSemanticError      = "semantic_error"
)

// Error is the compact error payload returned by APIs and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), 512)}
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// BackendUnavailable reports a network, auth or provider-side failure.
func BackendUnavailable(provider, message string, cause error) *Error {
	return New(CategoryNetwork, CodeBackendUnavailable, message, map[string]any{"provider": provider}, cause)
}

// BackendTimeout reports a backend call that exceeded its time budget.
func BackendTimeout(provider, message string, cause error) *Error {
	return New(CategoryNetwork, CodeBackendTimeout, message, map[string]any{"provider": provider}, cause)
}

// BackendRateLimited reports an exhausted provider quota.
func BackendRateLimited(provider, message string, cause error) *Error {
	return New(CategoryModel, CodeBackendRateLimited, message, map[string]any{"provider": provider}, cause)
}

// ParseError reports model output that does not follow the command syntax.
// fragment is the offending substring, if any.
func ParseError(message, fragment string) *Error {
	var ctx map[string]any
	if fragment != "" {
		ctx = map[string]any{"fragment": fragment}
	}
	return New(CategoryValidation, CodeParseError, message, ctx)
}

// SemanticError reports a well-formed command that violates a board constraint.
func SemanticError(constraint, message string, ctx map[string]any) *Error {
	c := map[string]any{"constraint": constraint}
	for k, v := range ctx {
		c[k] = v
	}
	return New(CategoryValidation, CodeSemanticError, message, c)
}

// IsTransport reports whether err is a backend failure that a retry would not fix.
func IsTransport(err error) bool {
	ce := From(err)
	if ce == nil {
		return false
	}
	switch ce.Code {
	case CodeBackendUnavailable, CodeBackendTimeout, CodeBackendRateLimited:
		return true
	}
	return false
}

// IsRecoverable reports whether err is a validation failure worth re-prompting for.
func IsRecoverable(err error) bool {
	ce := From(err)
	return ce != nil && (ce.Code == CodeParseError || ce.Code == CodeSemanticError)
}

// Constraint returns the constraint name of a semantic error, or "".
func (e *Error) Constraint() string {
	if e == nil || e.Context == nil {
		return ""
	}
	s, _ := e.Context["constraint"].(string)
	return s
}

// HTTPStatus maps category/code to HTTP status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		// Special-case common codes
		switch e.Code {
		case "not_found":
			return http.StatusNotFound
		case "conflict":
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	case CategoryNetwork:
		if e.Code == CodeBackendTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case CategoryModel:
		if e.Code == CodeBackendRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case CategoryTool:
		return http.StatusBadGateway
	case CategorySystem:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes a compact error envelope to the response writer.
// It attempts to include the trace_id if present in ctx.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}
	status := HTTPStatus(ce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	traceID := ""
	if r != nil {
		if span := trace.SpanFromContext(r.Context()); span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
	}
	// Envelope { error: Error, trace_id?: string }
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    ce,
		"trace_id": traceID,
	})
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		default:
			// Try to stringify primitive slices to keep payload compact.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				// Avoid giant blobs; keep a preview
				s := string(b)
				if len(s) > 256 {
					s = truncate(s, 256)
				}
				out[k] = s
			} else {
				out[k] = t
			}
		}
	}
	return out
}
