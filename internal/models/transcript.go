// Package models defines the data structures shared by the recording
// pipeline, the encounter service and the event stream.
package models

// Event types published to the transcript and encounter topics.
const (
	EventLiveTranscript     = "encounter.transcript.live"
	EventChunkCompleted     = "encounter.transcript.chunk"
	EventRecordingSaved     = "encounter.recording.saved"
	EventAutoCombineStarted = "encounter.autocombine.triggered"
	EventAutoCombineDone    = "encounter.autocombine.succeeded"
	EventAutoCombineFailed  = "encounter.autocombine.failed"
)

// LiveTranscript is the running stitched transcript of the current chunk.
type LiveTranscript struct {
	Text     string `json:"text"`
	RawText  string `json:"rawText"`
	Resolved int    `json:"resolved"`
	Pending  int    `json:"pending"`
}

// LiveTranscriptEvent is published after every resolved segment.
type LiveTranscriptEvent struct {
	EventType    string `json:"eventType"`
	EncounterID  string `json:"encounterId"`
	ChunkIndex   int    `json:"chunkIndex"`
	SegmentIndex int    `json:"segmentIndex"`
	Succeeded    bool   `json:"succeeded"`
	Text         string `json:"text"`
	RawText      string `json:"rawText"`
	Pending      int    `json:"pending"`
	Timestamp    int64  `json:"timestamp"`
}

// ChunkCompletedEvent is published when a chunk reaches ChunkComplete.
type ChunkCompletedEvent struct {
	EventType       string  `json:"eventType"`
	EncounterID     string  `json:"encounterId"`
	ChunkIndex      int     `json:"chunkIndex"`
	Success         bool    `json:"success"`
	Transcript      string  `json:"transcript"`
	RawTranscript   string  `json:"rawTranscript"`
	DurationSeconds float64 `json:"durationSeconds"`
	Timestamp       int64   `json:"timestamp"`
}

// EncounterEvent is published for server-side encounter changes.
type EncounterEvent struct {
	EventType     string  `json:"eventType"`
	EncounterID   string  `json:"encounterId"`
	RecordingID   string  `json:"recordingId,omitempty"`
	TotalDuration float64 `json:"totalDuration"`
	Error         string  `json:"error,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}
