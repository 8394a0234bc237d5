// Package audiobuf implements the per-session rolling PCM buffer and a
// lightweight energy-based voice activity detector, adapted from the
// orchestrator's RMS VAD into an offset-tracking buffer manager (§4.2).
package audiobuf

import "sync"

const (
	sampleRate = 16000

	maxBufferSec   = 45.0
	slideSec       = 30.0
	stallTailSec   = 25.0
	stallClipSec   = 5.0
	minChunkCloudSec = 0.4
	minChunkBatchSec = 1.0
)

// RollingBuffer is the per-session buffer described in §3/§4.2: contiguous
// float32 PCM capped at ~45s, with an offset pair tracking how much audio
// has been dropped versus how much has been consumed by ASR passes.
type RollingBuffer struct {
	mu sync.Mutex

	samples []float32

	bufferOffsetSec    float64
	timestampOffsetSec float64

	sinceLastPromotion float64 // seconds of tail accumulated without a promotion tick
}

func NewRollingBuffer() *RollingBuffer {
	return &RollingBuffer{}
}

// Append concatenates frames, sliding the window when the cap is exceeded.
func (b *RollingBuffer) Append(frames []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, frames...)

	if b.lenSec() > maxBufferSec {
		dropSamples := int(slideSec * sampleRate)
		if dropSamples > len(b.samples) {
			dropSamples = len(b.samples)
		}
		b.samples = b.samples[dropSamples:]
		b.bufferOffsetSec += float64(dropSamples) / sampleRate
	}

	if b.timestampOffsetSec < b.bufferOffsetSec {
		b.timestampOffsetSec = b.bufferOffsetSec
	}
}

func (b *RollingBuffer) lenSec() float64 {
	return float64(len(b.samples)) / sampleRate
}

// NextChunk returns the audio starting at timestampOffsetSec (relative to
// bufferOffsetSec) through the end of the buffer, and its duration in
// seconds.
func (b *RollingBuffer) NextChunk() (pcm []float32, durationSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	startSample := int((b.timestampOffsetSec - b.bufferOffsetSec) * sampleRate)
	if startSample < 0 {
		startSample = 0
	}
	if startSample >= len(b.samples) {
		return nil, 0
	}

	out := make([]float32, len(b.samples)-startSample)
	copy(out, b.samples[startSample:])
	return out, float64(len(out)) / sampleRate
}

// AdvanceOffset moves timestampOffsetSec forward by deltaSec after a
// successful ASR pass commits some finals; it never moves the offset
// backwards and never below bufferOffsetSec.
func (b *RollingBuffer) AdvanceOffset(deltaSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if deltaSec <= 0 {
		return
	}
	b.timestampOffsetSec += deltaSec
	if b.timestampOffsetSec < b.bufferOffsetSec {
		b.timestampOffsetSec = b.bufferOffsetSec
	}
	b.sinceLastPromotion = 0
}

// ClipIfStalled implements §4.2's stall guard: if the unconsumed tail
// exceeds 25s with no promotion, force the offset forward to
// end_of_buffer - 5s so a fresh window starts next pass.
func (b *RollingBuffer) ClipIfStalled() {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := b.lenSec() + b.bufferOffsetSec - b.timestampOffsetSec
	if tail <= stallTailSec {
		return
	}
	endOfBuffer := b.bufferOffsetSec + b.lenSec()
	b.timestampOffsetSec = endOfBuffer - stallClipSec
	if b.timestampOffsetSec < b.bufferOffsetSec {
		b.timestampOffsetSec = b.bufferOffsetSec
	}
}

// Offsets returns the current (bufferOffsetSec, timestampOffsetSec) pair,
// satisfying the invariant timestampOffsetSec >= bufferOffsetSec.
func (b *RollingBuffer) Offsets() (bufferOffsetSec, timestampOffsetSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bufferOffsetSec, b.timestampOffsetSec
}

// MinChunkSec returns the minimum chunk duration required before a chunk
// is dispatched to ASR, per backend style.
func MinChunkSec(cloudStreaming bool) float64 {
	if cloudStreaming {
		return minChunkCloudSec
	}
	return minChunkBatchSec
}
