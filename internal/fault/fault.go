// Package fault classifies failures of the conversation pipeline stages.
// Every stage returns a *Error carrying a Kind so the loop can branch on
// the kind instead of matching error strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a pipeline failure
type Kind int

const (
	KindUnknown Kind = iota
	KindCaptureTimeout
	KindUnintelligible
	KindRecognition
	KindTransport
	KindDecode
	KindDevice
	KindPlayback
)

// String returns the metric/log label for the kind
func (k Kind) String() string {
	switch k {
	case KindCaptureTimeout:
		return "capture_timeout"
	case KindUnintelligible:
		return "unintelligible"
	case KindRecognition:
		return "recognition_service"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindDevice:
		return "device"
	case KindPlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Error is a classified stage failure
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

// New wraps err with a kind and the stage that produced it
func New(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Newf builds a classified error from a format string
func Newf(kind Kind, stage string, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// StageOf returns the stage of the first *Error in err's chain
func StageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
