package model

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxClassifier runs an ONNX model through onnxruntime. Tensors are
// allocated per call so concurrent Run calls only share the session.
type OnnxClassifier struct {
	session     *ort.DynamicAdvancedSession
	outputShape ort.Shape
}

// NewOnnxLoader returns a Loader for the model at modelPath. libPath points at
// the onnxruntime shared library; empty uses the library default.
func NewOnnxLoader(modelPath, libPath string) Loader {
	return func(metadata Metadata) (Classifier, error) {
		if _, err := os.Stat(modelPath); err != nil {
			return nil, fmt.Errorf("failed to stat model file: %w", err)
		}

		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
			}
		}

		session, err := ort.NewDynamicAdvancedSession(modelPath,
			[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
		if err != nil {
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to create ONNX session: %w", err)
		}

		return &OnnxClassifier{
			session:     session,
			outputShape: ort.NewShape(1, int64(len(metadata.Classes))),
		}, nil
	}
}

func (c *OnnxClassifier) Run(input Tensor) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](c.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	// The tensor memory is released on return.
	return append([]float32(nil), outputTensor.GetData()...), nil
}

func (c *OnnxClassifier) Close() {
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}
