package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Brownie44l1/blight-api/internal/history"
	"github.com/Brownie44l1/blight-api/internal/inference"
	"github.com/Brownie44l1/blight-api/internal/knowledge"
	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const uploadField = "file"

type Classifier interface {
	Classify(ctx context.Context, upload *inference.Upload) (*inference.Response, error)
}

type HistoryLister interface {
	ListNewestFirst() []history.Entry
}

type StatusReporter interface {
	Status() model.Status
}

type Handler struct {
	classifier     Classifier
	history        HistoryLister
	knowledge      *knowledge.Base
	model          StatusReporter
	maxUploadBytes int64
}

func NewHandler(classifier Classifier, lister HistoryLister, kb *knowledge.Base, status StatusReporter, maxUploadBytes int64) *Handler {
	return &Handler{
		classifier:     classifier,
		history:        lister,
		knowledge:      kb,
		model:          status,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(h.Health))
	r.With(middleware.RequestSize(h.maxUploadBytes)).Post("/predict", RestHandler(h.Predict))
	r.Get("/history", RestHandler(h.History))
	r.Get("/diseases", RestHandler(h.Diseases))
}

type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Health always succeeds; a failed model is reported, not treated as down.
func (h *Handler) Health(r *http.Request) (any, error) {
	return HealthResponse{Status: "healthy", Model: h.model.Status().String()}, nil
}

// Predict rejects requests against an unavailable model before the body is
// read, so a failed model wins over any input or size error.
func (h *Handler) Predict(r *http.Request) (any, error) {
	if h.model.Status() != model.StatusReady {
		return nil, &inference.Error{Kind: inference.KindModelUnavailable, Err: model.ErrModelUnavailable}
	}

	upload, err := h.readUpload(r)
	if err != nil {
		return nil, err
	}

	if upload != nil {
		slog.Debug("received file", "filename", upload.Filename, "size", len(upload.Data))
	}

	return h.classifier.Classify(r.Context(), upload)
}

// readUpload returns a nil upload when the request carries no file part. A
// part sent with an empty filename comes back with Filename "". The body is
// already capped by middleware.RequestSize.
func (h *Handler) readUpload(r *http.Request) (*inference.Upload, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", tooLarge.Limit)
		}
		slog.Debug("request is not a multipart form", "error", err)
		return nil, nil
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, CodedErrorf(http.StatusBadRequest, "unable to read upload: %v", err)
		}
		// Parts without a filename are parsed as plain form values.
		if values, ok := r.MultipartForm.Value[uploadField]; ok && len(values) > 0 {
			return &inference.Upload{Filename: "", Data: []byte(values[0])}, nil
		}
		return nil, nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "failed to read uploaded file")
	}

	return &inference.Upload{Filename: header.Filename, Data: data}, nil
}

type historyQuery struct {
	Limit int `schema:"limit"`
}

func (h *Handler) History(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[historyQuery](r)
	if err != nil {
		return nil, err
	}
	if query.Limit < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit must not be negative")
	}

	entries := h.history.ListNewestFirst()
	if query.Limit > 0 && query.Limit < len(entries) {
		entries = entries[:query.Limit]
	}
	return entries, nil
}

func (h *Handler) Diseases(r *http.Request) (any, error) {
	return h.knowledge.All(), nil
}
