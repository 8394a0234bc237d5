package asr

import (
	"context"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// localModel is the narrow handle an in-process model binding exposes.
// The concrete binding (grounded on askidmobile-AIWisper's
// k2-fsa/sherpa-onnx-go dependency: a handle type with a PCM-in,
// segments-out method) lives behind this interface so tests can supply a
// stub without linking a cgo/onnxruntime dependency.
type localModel interface {
	TranscribePCM(pcm []float32, language string) ([]segment.RawHypothesis, Info, error)
}

// Local is the in-process ASR backend variant (§4.3), backed by a local
// streaming model (e.g. a sherpa-onnx recognizer) instead of a network
// call. It never mutates pcm — it hands the caller's slice straight to
// the model binding, which itself must copy if it retains anything.
type Local struct {
	model localModel
	name  string
}

// NewLocal wraps a localModel handle as a Backend.
func NewLocal(name string, model localModel) *Local {
	return &Local{name: name, model: model}
}

func (l *Local) Name() string {
	if l.name != "" {
		return l.name
	}
	return "local"
}

func (l *Local) Transcribe(ctx context.Context, pcm []float32, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, Info{}, err
	}
	return l.model.TranscribePCM(pcm, language)
}
