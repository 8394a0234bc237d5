// Package gateway implements the WebSocket ingestion server (C5): one
// connection per transcription session, driving the rolling buffer, ASR
// backend, stabiliser, and speaker attribution, and publishing outbound
// stream records for the collector (C6). Each session also constructs an
// energy VAD, but no code path consults it: chunks are dispatched to ASR
// on buffered duration alone.
package gateway

// ConfigFrame is the mandatory first text frame on a connection (§6).
type ConfigFrame struct {
	UID               string `json:"uid"`
	Platform          string `json:"platform"`
	MeetingURL        string `json:"meeting_url"`
	Token             string `json:"token"`
	MeetingID         string `json:"meeting_id"`
	Language          string `json:"language,omitempty"`
	Task              string `json:"task,omitempty"`
	MaxClients        int    `json:"max_clients,omitempty"`
	MaxConnectionTime int    `json:"max_connection_time,omitempty"`
	UseVAD            bool   `json:"use_vad,omitempty"`
	InitialPrompt     string `json:"initial_prompt,omitempty"`
}

func (c ConfigFrame) missingFields() []string {
	var missing []string
	if c.UID == "" {
		missing = append(missing, "uid")
	}
	if c.MeetingID == "" {
		missing = append(missing, "meeting_id")
	}
	if c.Platform == "" {
		missing = append(missing, "platform")
	}
	if c.Token == "" {
		missing = append(missing, "token")
	}
	return missing
}

// runtimeFrame is used to sniff the "type" discriminator of a runtime
// text frame before decoding its full shape.
type runtimeFrame struct {
	Type string `json:"type"`
}

// SpeakerActivityUpdate carries out-of-band mic-activity bitmaps (§4.4, §6).
type SpeakerActivityUpdate struct {
	Type      string          `json:"type"`
	MeetingID string          `json:"meeting_id"`
	Timestamp string          `json:"timestamp"`
	Speakers  []SpeakerUpdate `json:"speakers"`
}

type SpeakerUpdate struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MicActivityBits string `json:"mic_activity_bits"`
}

// SessionControl carries lifecycle events like LEAVING_MEETING (§6).
type SessionControl struct {
	Type    string `json:"type"`
	Payload struct {
		Event string `json:"event"`
	} `json:"payload"`
}

const eventLeavingMeeting = "LEAVING_MEETING"

// outbound server->client text frames (§6).

type readyStatus struct {
	Status  string `json:"status"`
	UID     string `json:"uid"`
	Backend string `json:"backend,omitempty"`
}

type waitStatus struct {
	Status       string `json:"status"`
	UID          string `json:"uid"`
	WaitMinutes  int    `json:"message"`
}

type errorStatus struct {
	Status  string `json:"status"`
	UID     string `json:"uid"`
	Message string `json:"message"`
}

type segmentsFrame struct {
	UID      string         `json:"uid"`
	Segments []wireSegmentOut `json:"segments"`
}

type wireSegmentOut struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Text        string  `json:"text"`
	SpeakerID   string  `json:"speaker_id,omitempty"`
	SpeakerName string  `json:"speaker_name,omitempty"`
	Completed   bool    `json:"completed"`
}

type disconnectFrame struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
}

const endOfAudioSentinel = "END_OF_AUDIO"
