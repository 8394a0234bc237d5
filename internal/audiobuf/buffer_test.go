package audiobuf

import "testing"

func TestRollingBufferOffsetInvariant(t *testing.T) {
	b := NewRollingBuffer()
	frames := make([]float32, sampleRate) // 1s of silence
	for i := 0; i < 50; i++ {
		b.Append(frames)
		bufOff, tsOff := b.Offsets()
		if tsOff < bufOff {
			t.Fatalf("invariant violated at iter %d: timestampOffsetSec %v < bufferOffsetSec %v", i, tsOff, bufOff)
		}
	}
}

func TestRollingBufferSlidesPastCap(t *testing.T) {
	b := NewRollingBuffer()
	frames := make([]float32, sampleRate)
	for i := 0; i < 50; i++ { // 50s > 45s cap
		b.Append(frames)
	}
	bufOff, _ := b.Offsets()
	if bufOff <= 0 {
		t.Fatalf("expected buffer to have slid and advanced bufferOffsetSec, got %v", bufOff)
	}
}

func TestClipIfStalledAdvancesOffset(t *testing.T) {
	b := NewRollingBuffer()
	frames := make([]float32, sampleRate)
	for i := 0; i < 30; i++ { // 30s tail, no promotion
		b.Append(frames)
	}
	_, before := b.Offsets()
	b.ClipIfStalled()
	_, after := b.Offsets()
	if after <= before {
		t.Fatalf("expected ClipIfStalled to advance timestampOffsetSec, before=%v after=%v", before, after)
	}
}

func TestVADRequiresConsecutiveSilenceForEnd(t *testing.T) {
	v := NewVAD(0.01)
	loud := make([]byte, 200)
	for i := range loud {
		loud[i] = 0x7F
	}
	quiet := make([]byte, 200)

	if ev := v.Process(loud); ev.Type != SpeechStart {
		t.Fatalf("expected SpeechStart, got %v", ev.Type)
	}
	if ev := v.Process(quiet); ev.Type == SpeechEnd {
		t.Fatalf("did not expect SpeechEnd after a single silent chunk")
	}
	v.Process(quiet)
	if ev := v.Process(quiet); ev.Type != SpeechEnd {
		t.Fatalf("expected SpeechEnd after 3 consecutive silent chunks, got %v", ev.Type)
	}
}
