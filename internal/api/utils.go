package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APIError is the envelope returned on every non-2xx response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	TraceID string         `json:"trace_id"`
	Details map[string]any `json:"details,omitempty"`
}

func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorResponse writes the error envelope with a fresh trace id.
func ErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	ErrorResponseWithDetails(w, r, status, message, nil)
}

func ErrorResponseWithDetails(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]any) {
	WriteJSONResponse(w, r, status, APIError{
		Code:    statusToCode(status),
		Message: message,
		TraceID: uuid.NewString(),
		Details: details,
	})
}

// ErrorFromDomain maps a sentinel error onto the envelope. Unexpected
// errors are logged in full server-side and surfaced as a generic 500.
func ErrorFromDomain(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		ErrorResponse(w, r, http.StatusBadRequest, trimSentinel(err, ErrValidation))
	case errors.Is(err, ErrUnauthenticated):
		ErrorResponse(w, r, http.StatusUnauthorized, trimSentinel(err, ErrUnauthenticated))
	case errors.Is(err, ErrForbidden):
		ErrorResponse(w, r, http.StatusForbidden, trimSentinel(err, ErrForbidden))
	case errors.Is(err, ErrNotFound):
		ErrorResponse(w, r, http.StatusNotFound, trimSentinel(err, ErrNotFound))
	case errors.Is(err, ErrConflict):
		ErrorResponse(w, r, http.StatusConflict, trimSentinel(err, ErrConflict))
	default:
		traceID := uuid.NewString()
		slog.ErrorContext(r.Context(), "Unexpected error",
			slog.Any("error", err),
			slog.String("trace_id", traceID),
		)
		WriteJSONResponse(w, r, http.StatusInternalServerError, APIError{
			Code:    "INTERNAL_SERVER_ERROR",
			Message: "Unexpected error occurred",
			TraceID: traceID,
		})
	}
}

// trimSentinel keeps the human part of a wrapped sentinel ("bad thing:
// authentication required...") and falls back to the sentinel text.
func trimSentinel(err error, sentinel error) string {
	msg := err.Error()
	suffix := ": " + sentinel.Error()
	if len(msg) > len(suffix) && msg[len(msg)-len(suffix):] == suffix {
		return msg[:len(msg)-len(suffix)]
	}
	return msg
}

// WriteJSONResponse encodes the data to JSON and writes the response.
func WriteJSONResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	js, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to marshal JSON response", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write response body", slog.Any("error", err))
	}
}

// DecodeJSONBody reads and decodes a JSON request body safely.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		default:
			return fmt.Errorf("error decoding JSON body: %w", err)
		}
	}

	if err = dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// VerifyAudience reports whether the expected audience appears in the
// token's aud claim.
func VerifyAudience(claimsAudience jwt.ClaimStrings, expectedAudience string) bool {
	for _, aud := range claimsAudience {
		if aud == expectedAudience {
			return true
		}
	}
	return false
}
