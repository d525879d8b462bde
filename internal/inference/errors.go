package inference

import "errors"

// Kind classifies a Classify failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindModelUnavailable
	KindMissingInput
	KindEmptyInput
	KindInvalidImage
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindModelUnavailable:
		return "ModelUnavailable"
	case KindMissingInput:
		return "MissingInput"
	case KindEmptyInput:
		return "EmptyInput"
	case KindInvalidImage:
		return "InvalidImage"
	case KindInternal:
		return "InternalInferenceError"
	default:
		return "Unknown"
	}
}

func (k Kind) message() string {
	switch k {
	case KindModelUnavailable:
		return "Model is not loaded"
	case KindMissingInput:
		return "No file part in the request"
	case KindEmptyInput:
		return "No file selected"
	case KindInvalidImage:
		return "Could not process image"
	default:
		return "Prediction failed"
	}
}

// Error is returned by Classify for every failure path.
type Error struct {
	Kind Kind
	Err  error
}

// Error returns the client-facing message. Internal errors surface their
// cause, the rest use a fixed message.
func (e *Error) Error() string {
	if e.Kind == KindInternal && e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns KindUnknown for errors not produced by Classify.
func KindOf(err error) Kind {
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr.Kind
	}
	return KindUnknown
}
