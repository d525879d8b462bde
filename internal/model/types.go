package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	LabelEarlyBlight = "Early Blight"
	LabelLateBlight  = "Late Blight"
	LabelHealthy     = "Healthy"
)

// DefaultClasses is index-aligned with the classifier's output vector.
var DefaultClasses = []string{LabelEarlyBlight, LabelLateBlight, LabelHealthy}

const DefaultImageSize = 256

var ErrInvalidMetadata = errors.New("invalid model metadata")

// Metadata describes the classifier's input/output contract. It is loaded once
// at startup and is the single source of the label order.
type Metadata struct {
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
	InputShape []int64  `json:"input_shape"`
	Classes    []string `json:"classes"`
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func (t Tensor) Elements() int64 {
	return elements(t.Shape)
}

func DefaultMetadata() Metadata {
	return Metadata{
		InputName:  "input",
		OutputName: "output",
		InputShape: []int64{1, DefaultImageSize, DefaultImageSize, 3},
		Classes:    append([]string(nil), DefaultClasses...),
	}
}

// LoadMetadata reads a metadata JSON file over the defaults. An empty path
// returns the defaults.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()
	if path == "" {
		return metadata, nil
	}

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// Validate checks for an NHWC input of batch 1 with 3 channels and a
// non-empty, duplicate-free label list.
func (m Metadata) Validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("%w: input and output names are required", ErrInvalidMetadata)
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("%w: input shape must have 4 dimensions, got %v", ErrInvalidMetadata, m.InputShape)
	}
	if m.InputShape[0] != 1 || m.InputShape[3] != 3 {
		return fmt.Errorf("%w: input shape must be [1, H, W, 3], got %v", ErrInvalidMetadata, m.InputShape)
	}
	if m.InputShape[1] <= 0 || m.InputShape[2] <= 0 {
		return fmt.Errorf("%w: image dimensions must be positive, got %v", ErrInvalidMetadata, m.InputShape)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("%w: at least one class is required", ErrInvalidMetadata)
	}
	seen := make(map[string]struct{}, len(m.Classes))
	for _, class := range m.Classes {
		if _, ok := seen[class]; ok {
			return fmt.Errorf("%w: duplicate class %q", ErrInvalidMetadata, class)
		}
		seen[class] = struct{}{}
	}
	return nil
}

// ImageSize returns the height and width the classifier expects.
func (m Metadata) ImageSize() (height, width int) {
	return int(m.InputShape[1]), int(m.InputShape[2])
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}

func shapesEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
