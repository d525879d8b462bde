package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brownie44l1/blight-api/internal/history"
	"github.com/Brownie44l1/blight-api/internal/knowledge"
	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/google/uuid"
)

// The media type is always JPEG, whatever was uploaded. Clients rely on it.
const imageDataPrefix = "data:image/jpeg;base64,"

type Engine interface {
	Available() error
	Predict(ctx context.Context, input model.Tensor) ([]float32, error)
}

type Preprocessor interface {
	Preprocess(data []byte) (model.Tensor, error)
}

type KnowledgeBase interface {
	Lookup(label string) (knowledge.Info, bool)
}

type HistoryRecorder interface {
	Append(entry history.Entry)
}

// Upload is a file from the request. A nil *Upload means no file was sent.
type Upload struct {
	Filename string
	Data     []byte
}

type Result struct {
	Label      string
	Confidence float32
	RawImage   []byte
}

type Response struct {
	Prediction string         `json:"prediction"`
	Confidence string         `json:"confidence"`
	Image      string         `json:"image"`
	Info       knowledge.Info `json:"info"`
}

type Service struct {
	engine       Engine
	preprocessor Preprocessor
	knowledge    KnowledgeBase
	history      HistoryRecorder
	classes      []string

	now   func() time.Time
	newId func() uuid.UUID
}

// NewService takes classes in the same order as the model's output vector.
func NewService(engine Engine, preprocessor Preprocessor, kb KnowledgeBase, recorder HistoryRecorder, classes []string) *Service {
	return &Service{
		engine:       engine,
		preprocessor: preprocessor,
		knowledge:    kb,
		history:      recorder,
		classes:      append([]string(nil), classes...),
		now:          time.Now,
		newId:        uuid.New,
	}
}

// Classify runs one upload through the pipeline. Every failure is an *Error
// and leaves the history untouched; a success appends exactly one entry.
func (s *Service) Classify(ctx context.Context, upload *Upload) (*Response, error) {
	if err := s.engine.Available(); err != nil {
		return nil, &Error{Kind: KindModelUnavailable, Err: err}
	}
	if upload == nil {
		return nil, &Error{Kind: KindMissingInput}
	}
	if upload.Filename == "" {
		return nil, &Error{Kind: KindEmptyInput}
	}

	tensor, err := s.preprocessor.Preprocess(upload.Data)
	if err != nil {
		slog.Info("rejected upload", "filename", upload.Filename, "size", len(upload.Data), "error", err)
		return nil, &Error{Kind: KindInvalidImage, Err: err}
	}

	result, err := s.predict(ctx, tensor, upload.Data)
	if err != nil {
		return nil, err
	}

	info, ok := s.knowledge.Lookup(result.Label)
	if !ok {
		slog.Warn("no reference info for label", "label", result.Label)
	}

	confidence := FormatConfidence(result.Confidence)
	image := EncodeImage(result.RawImage)

	s.history.Append(history.Entry{
		Id:         s.newId(),
		Image:      image,
		Prediction: result.Label,
		Confidence: confidence,
		Timestamp:  s.now().Format(history.TimestampLayout),
	})

	return &Response{
		Prediction: result.Label,
		Confidence: confidence,
		Image:      image,
		Info:       info,
	}, nil
}

func (s *Service) predict(ctx context.Context, tensor model.Tensor, raw []byte) (Result, error) {
	probs, err := s.engine.Predict(ctx, tensor)
	if err != nil {
		if errors.Is(err, model.ErrModelUnavailable) {
			return Result{}, &Error{Kind: KindModelUnavailable, Err: err}
		}
		slog.Error("prediction error", "error", err)
		return Result{}, &Error{Kind: KindInternal, Err: err}
	}

	idx, confidence := Argmax(probs)
	if idx < 0 || idx >= len(s.classes) {
		return Result{}, &Error{Kind: KindInternal, Err: fmt.Errorf("no class for output index %d of %d values", idx, len(probs))}
	}
	if isNaN(confidence) {
		return Result{}, &Error{Kind: KindInternal, Err: fmt.Errorf("model returned NaN score for class %s", s.classes[idx])}
	}

	return Result{
		Label:      s.classes[idx],
		Confidence: confidence,
		RawImage:   raw,
	}, nil
}

// Argmax returns the first index holding the maximum value, or -1 for an
// empty vector. NaN compares greater than everything, so the first NaN wins.
func Argmax(values []float32) (int, float32) {
	if len(values) == 0 {
		return -1, 0
	}

	maxIdx := 0
	maxVal := values[0]
	for i, val := range values[1:] {
		if isNaN(maxVal) {
			break
		}
		if val > maxVal || isNaN(val) {
			maxVal = val
			maxIdx = i + 1
		}
	}
	return maxIdx, maxVal
}

func isNaN(v float32) bool {
	return v != v
}

// FormatConfidence renders 0.9753 as "97.53%".
func FormatConfidence(confidence float32) string {
	return fmt.Sprintf("%.2f%%", float64(confidence)*100)
}

func EncodeImage(raw []byte) string {
	return imageDataPrefix + base64.StdEncoding.EncodeToString(raw)
}
