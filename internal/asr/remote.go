package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/lokutor-ai/meeting-intel/internal/segment"
	"github.com/lokutor-ai/meeting-intel/pkg/audio"
)

// RemoteHTTP is the batch-style ASR backend that posts a WAV-wrapped chunk
// to an HTTP transcription service and decodes a segments+info response.
// Grounded on the teacher's pkg/providers/stt/openai.go multipart-upload
// idiom, generalized from a plain-text response to the §4.3 segment
// schema, with Overloaded handling and bounded exponential-backoff retry.
type RemoteHTTP struct {
	client     *http.Client
	url        string
	apiKey     string
	sampleRate int
	maxRetries int
}

// NewRemoteHTTP constructs a RemoteHTTP backend against the given
// transcription endpoint.
func NewRemoteHTTP(url, apiKey string) *RemoteHTTP {
	return &RemoteHTTP{
		client:     &http.Client{Timeout: 30 * time.Second},
		url:        url,
		apiKey:     apiKey,
		sampleRate: 16000,
		maxRetries: 3,
	}
}

func (r *RemoteHTTP) Name() string { return "remote_http" }

type remoteResponseSegment struct {
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
}

type remoteResponse struct {
	Segments            []remoteResponseSegment `json:"segments"`
	DetectedLanguage     string                  `json:"language"`
	LanguageProbability  float64                 `json:"language_probability"`
}

// Transcribe uploads pcm as a WAV file and decodes the response. It never
// mutates pcm. On 429/503 it returns an *Overloaded without retrying
// internally past maxRetries; callers (the gateway) must not advance
// offsets when Overloaded is returned.
func (r *RemoteHTTP) Transcribe(ctx context.Context, pcm []float32, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error) {
	pcm16 := float32PCMToInt16LE(pcm)
	wav := audio.NewWavBuffer(pcm16, r.sampleRate)

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		hyps, info, err := r.doRequest(ctx, wav, language, task, prompt)
		if err == nil {
			return hyps, info, nil
		}
		if ov, ok := IsOverloaded(err); ok {
			if attempt == r.maxRetries {
				return nil, Info{}, ov
			}
			wait := backoff
			if retryAfter := time.Duration(ov.RetryAfterSec * float64(time.Second)); retryAfter > wait {
				wait = retryAfter
			}
			select {
			case <-ctx.Done():
				return nil, Info{}, ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			lastErr = err
			continue
		}
		return nil, Info{}, err
	}
	return nil, Info{}, lastErr
}

func (r *RemoteHTTP) doRequest(ctx context.Context, wav []byte, language string, task Task, prompt string) ([]segment.RawHypothesis, Info, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if language != "" {
		_ = writer.WriteField("language", language)
	}
	_ = writer.WriteField("task", string(task))
	if prompt != "" {
		_ = writer.WriteField("initial_prompt", prompt)
	}
	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, Info{}, err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, Info{}, err
	}
	if err := writer.Close(); err != nil {
		return nil, Info{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, Info{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, Info{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		retryAfter := 1.0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.ParseFloat(v, 64); perr == nil {
				retryAfter = secs
			}
		}
		return nil, Info{}, &Overloaded{RetryAfterSec: retryAfter, Status: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Info{}, fmt.Errorf("remote asr error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, Info{}, err
	}

	hyps := make([]segment.RawHypothesis, 0, len(out.Segments))
	for _, s := range out.Segments {
		hyps = append(hyps, segment.RawHypothesis{
			StartSec:         s.Start,
			EndSec:           s.End,
			Text:             s.Text,
			NoSpeechProb:     s.NoSpeechProb,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
		})
	}
	return hyps, Info{DetectedLanguage: out.DetectedLanguage, LanguageProbability: out.LanguageProbability}, nil
}
