package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
		{"direct", New(KindTransport, "turn", io.ErrUnexpectedEOF), KindTransport},
		{"wrapped", fmt.Errorf("outer: %w", New(KindDecode, "assemble", nil)), KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("Expected kind %v, got %v", tt.want, got)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := New(KindTransport, "turn", io.ErrUnexpectedEOF)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("Expected wrapped cause to be reachable with errors.Is")
	}

	if StageOf(err) != "turn" {
		t.Errorf("Expected stage turn, got %q", StageOf(err))
	}

	if err.Error() != "turn: transport: unexpected EOF" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestIs(t *testing.T) {
	err := Newf(KindUnintelligible, "transcribe", "empty transcript")

	if !Is(err, KindUnintelligible) {
		t.Error("Expected error to be unintelligible")
	}
	if Is(err, KindRecognition) {
		t.Error("Did not expect error to be a recognition failure")
	}
	if Is(nil, KindUnknown) {
		t.Error("nil error must not match any kind")
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindCaptureTimeout: "capture_timeout",
		KindUnintelligible: "unintelligible",
		KindRecognition:    "recognition_service",
		KindTransport:      "transport",
		KindDecode:         "decode",
		KindDevice:         "device",
		KindPlayback:       "playback",
		Kind(99):           "unknown",
	}

	for kind, want := range kinds {
		if kind.String() != want {
			t.Errorf("Kind %d: expected %s, got %s", int(kind), want, kind.String())
		}
	}
}
