package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
)

// CloudStreaming is a persistent duplex ASR backend: a single long-lived
// websocket carries chunks out and final hypotheses back, instead of one
// request per chunk. Grounded on the teacher's
// pkg/providers/tts/lokutor.go duplex-websocket client (lazy
// mutex-guarded connection, wsjson request framing, a read loop
// classifying text/binary frames with EOS/ERR sentinels) — the same
// shape, pointed at a streaming transcription endpoint instead of TTS.
type CloudStreaming struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewCloudStreaming builds a CloudStreaming backend against the given
// websocket endpoint.
func NewCloudStreaming(url string) *CloudStreaming {
	return &CloudStreaming{url: url}
}

func (c *CloudStreaming) Name() string { return "cloud_streaming" }

func (c *CloudStreaming) getConn(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud streaming dial: %w", err)
	}
	c.conn = conn
	return conn, nil
}

type cloudChunkRequest struct {
	Language string `json:"language,omitempty"`
	Task     string `json:"task,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

type cloudFrame struct {
	Type             string  `json:"type"` // "segment" | "EOS" | "ERR"
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	Language         string  `json:"language,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Transcribe pushes one chunk over the duplex channel and collects
// hypotheses until the remote signals end-of-segment ("EOS") for this
// chunk. It never mutates pcm.
func (c *CloudStreaming) Transcribe(ctx context.Context, pcm []float32, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error) {
	conn, err := c.getConn(ctx)
	if err != nil {
		return nil, Info{}, err
	}

	if err := wsjson.Write(ctx, conn, cloudChunkRequest{Language: language, Task: string(task), Prompt: prompt}); err != nil {
		c.dropConn()
		return nil, Info{}, fmt.Errorf("cloud streaming write request: %w", err)
	}

	payload := float32PCMToInt16LE(pcm)
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		c.dropConn()
		return nil, Info{}, fmt.Errorf("cloud streaming write audio: %w", err)
	}

	var hyps []segment.RawHypothesis
	var info Info
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.dropConn()
			return nil, Info{}, fmt.Errorf("cloud streaming read: %w", err)
		}
		var frame cloudFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "segment":
			hyps = append(hyps, segment.RawHypothesis{
				StartSec: frame.Start, EndSec: frame.End, Text: frame.Text,
				NoSpeechProb: frame.NoSpeechProb, AvgLogprob: frame.AvgLogprob, CompressionRatio: frame.CompressionRatio,
			})
			if frame.Language != "" {
				info.DetectedLanguage = frame.Language
			}
		case "EOS":
			return hyps, info, nil
		case "ERR":
			return nil, Info{}, fmt.Errorf("cloud streaming remote error: %s", frame.Error)
		}
	}
}

func (c *CloudStreaming) dropConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
		c.conn = nil
	}
}

// Close releases the underlying connection, if any.
func (c *CloudStreaming) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "closing")
	c.conn = nil
	return err
}
