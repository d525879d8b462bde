package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Brownie44l1/blight-api/internal/inference"
	"github.com/gorilla/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

type errorResponse struct {
	Error string `json:"error"`
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := queryDecoder.Decode(&data, r.URL.Query()); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}
	return data, nil
}

// statusFor maps classification failures onto HTTP status classes.
func statusFor(kind inference.Kind) int {
	switch kind {
	case inference.KindMissingInput, inference.KindEmptyInput, inference.KindInvalidImage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			code := http.StatusInternalServerError

			var cerr *codedError
			var ierr *inference.Error
			switch {
			case errors.As(err, &cerr):
				code = cerr.code
			case errors.As(err, &ierr):
				code = statusFor(ierr.Kind)
			default:
				slog.Error("recieved non coded error from endpoint", "error", err)
			}

			// net/http cannot see the body limit through wrapped writers.
			if code == http.StatusRequestEntityTooLarge {
				w.Header().Set("Connection", "close")
			}
			if code == http.StatusInternalServerError {
				slog.Error("internal server error received in endpoint", "path", r.URL.Path, "error", err)
			}
			WriteJsonResponse(w, code, errorResponse{Error: err.Error()})
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, http.StatusOK, res)
	}
}

func WriteJsonResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error serializing response body", "error", err)
	}
}
