package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object, rejecting unknown fields. Syntax and
// type errors become validation errors; an oversized body is returned as is.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		var timeErr *wireTimeError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return apperr.Invalid("body", "request body is required")
		case errors.As(err, &timeErr):
			return apperr.Invalid(timeErr.field(), "%s", timeErr.Error())
		case errors.As(err, &typeErr):
			return apperr.Invalid(typeErr.Field, "must be %s", typeErr.Type.String())
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return apperr.Invalid("body", "%s", strings.TrimPrefix(err.Error(), "json: "))
		default:
			return apperr.Invalid("body", "malformed JSON")
		}
	}
	if decoder.More() {
		return apperr.Invalid("body", "unexpected data after JSON object")
	}
	return nil
}

// pathParam returns a required path segment.
func pathParam(r *http.Request, key string) (string, error) {
	value := strings.TrimSpace(r.PathValue(key))
	if value == "" {
		return "", apperr.Invalid(key, "is required")
	}
	return value, nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts an error-returning handler, mapping errors to problems.
func handle(env string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			problem.FromError(w, r, err, env)
		}
	}
}
