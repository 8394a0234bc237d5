package gateway

import (
	"math"
	"sync"
)

// echoGuardWindowSec bounds how much of the bot's own recently-sent
// audio is kept for correlation (§4.5 supplemented echo guard).
const (
	echoGuardWindowSec       = 2.0
	echoGuardSampleRate      = 16000
	echoGuardCorrelationHigh = 0.85
)

// echoGuard keeps a short rolling buffer of the bot's own last-announced
// audio and runs a time-domain correlation check against incoming
// participant audio, rejecting chunks that are really the bot's own
// output bouncing back through an open participant mic. Adapted from the
// teacher's EchoSuppressor (read in full, then reimplemented against
// this spec's data model — see DESIGN.md); disabled unless
// ECHO_GUARD_ENABLED is set (§4.5), since most deployments have no
// bot-side audio output in this spec's scope.
type echoGuard struct {
	enabled bool

	mu         sync.Mutex
	reference  []float32
}

func newEchoGuard(enabled bool) *echoGuard {
	return &echoGuard{enabled: enabled}
}

// NotePlayback records audio the bot itself emitted (e.g. a TTS prompt),
// to be correlated against subsequent incoming chunks.
func (g *echoGuard) NotePlayback(pcm []float32) {
	if !g.enabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reference = append(g.reference, pcm...)
	maxLen := int(echoGuardWindowSec * echoGuardSampleRate)
	if len(g.reference) > maxLen {
		g.reference = g.reference[len(g.reference)-maxLen:]
	}
}

// IsEcho reports whether chunk correlates strongly enough with the
// bot's recent own-playback buffer to be treated as echo rather than
// participant speech.
func (g *echoGuard) IsEcho(chunk []float32) bool {
	if !g.enabled {
		return false
	}
	g.mu.Lock()
	ref := g.reference
	g.mu.Unlock()

	if len(ref) == 0 || len(chunk) == 0 {
		return false
	}
	return normalizedCrossCorrelation(chunk, ref) >= echoGuardCorrelationHigh
}

// normalizedCrossCorrelation returns the normalized cross-correlation at
// zero lag between a and the tail of b (aligned against b's most recent
// samples; no other lags are tried, since the echo path delay is assumed
// small relative to chunk size).
func normalizedCrossCorrelation(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
		a = a[len(a)-n:]
	} else {
		b = b[len(b)-n:]
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
