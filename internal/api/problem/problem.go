package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/gatherings/internal/api/middleware"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

const contentType = "application/problem+json"

const (
	TypeNotFound   = "https://gatherings.dev/problems/not-found"
	TypeConflict   = "https://gatherings.dev/problems/conflict"
	TypeValidation = "https://gatherings.dev/problems/validation-error"
	TypeTooLarge   = "https://gatherings.dev/problems/payload-too-large"
	TypeServer     = "https://gatherings.dev/problems/server-error"
)

type ProblemDetails struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Errors    map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// FromError writes the problem matching err's domain kind. Domain errors
// carry caller-facing messages and are always shown; anything else is a
// server error whose detail is hidden outside development.
func FromError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		if errors.Is(err, apperr.ErrNotFound) {
			Write(w, r, http.StatusNotFound, TypeNotFound, "Not found", err, env, WithDetail(err.Error()))
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Write(w, r, http.StatusRequestEntityTooLarge, TypeTooLarge, "Payload too large", err, env,
				WithDetail(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		Write(w, r, http.StatusInternalServerError, TypeServer, "Server error", err, env)
		return
	}

	switch appErr.Kind {
	case apperr.KindNotFound:
		Write(w, r, http.StatusNotFound, TypeNotFound, "Not found", err, env, WithDetail(appErr.Message))
	case apperr.KindConflict:
		Write(w, r, http.StatusConflict, TypeConflict, "Conflict", err, env, WithDetail(appErr.Message))
	case apperr.KindValidation:
		opts := []Option{WithDetail(appErr.Message)}
		if appErr.Field != "" {
			opts = append(opts, WithErrors(map[string]any{appErr.Field: appErr.Message}))
		}
		Write(w, r, http.StatusBadRequest, TypeValidation, "Invalid request", err, env, opts...)
	default:
		Write(w, r, http.StatusInternalServerError, TypeServer, "Server error", err, env)
	}
}

func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}
	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}
	if r != nil {
		problem.Instance = r.URL.Path
		problem.RequestID = middleware.RequestID(r.Context())
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, problem)
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
