// Package asr defines the uniform ASR backend contract (§4.3) over the
// {Local, RemoteHTTP, CloudStreaming} transcriber variants.
package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// Kind selects which Backend variant a gateway process constructs at
// startup (§4.3: "exposing all three simultaneously... is an operational
// decision left to the deployer").
type Kind string

const (
	KindRemoteHTTP     Kind = "remote_http"
	KindCloudStreaming Kind = "cloud_streaming"
	KindLocal          Kind = "local"
)

// Task mirrors WhisperLive's "transcribe" vs "translate" task parameter.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Info carries the ASR pass's auxiliary detection metadata.
type Info struct {
	DetectedLanguage    string
	LanguageProbability float64
	DurationSec         float64
}

// Backend is the contract every ASR variant implements (§4.3). Callers
// must not assume Transcribe is safe to call concurrently for the *same*
// session, but implementations must be safe to call concurrently across
// different sessions.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, pcm []float32, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error)
}

// ErrOverloaded is the sentinel wrapped by Overloaded.
var ErrOverloaded = errors.New("asr: backend overloaded")

// Overloaded is raised by the RemoteHTTP variant (and the server-side
// admission gate) when the upstream signals it cannot serve this request
// right now. The gateway must not advance offsets on this error — it
// re-buffers and retries next pass.
type Overloaded struct {
	RetryAfterSec float64
	Status        int
}

func (o *Overloaded) Error() string {
	return fmt.Sprintf("%v: retry_after=%.1fs status=%d", ErrOverloaded, o.RetryAfterSec, o.Status)
}

func (o *Overloaded) Unwrap() error { return ErrOverloaded }

// IsOverloaded reports whether err (or anything it wraps) is an
// *Overloaded.
func IsOverloaded(err error) (*Overloaded, bool) {
	var o *Overloaded
	if errors.As(err, &o) {
		return o, true
	}
	return nil, false
}

// float32PCMToInt16LE converts 32-bit float PCM in [-1,1] into 16-bit
// little-endian PCM bytes, the wire format every backend variant below
// actually transmits or hashes.
func float32PCMToInt16LE(pcm []float32) []byte {
	out := make([]byte, len(pcm)*2)
	for i, f := range pcm {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		v := int16(f * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
