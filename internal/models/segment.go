package models

import "time"

// Segment is one fixed-interval slice of captured audio. Audio holds
// 16-bit little-endian PCM. Index starts at 0 within a chunk.
type Segment struct {
	Index        int
	ChunkIndex   int
	Audio        []byte
	SampleRateHz int
	Channels     int
	Duration     time.Duration
	EmittedAt    time.Time
}

// SegmentResult is produced exactly once per segment. Text and RawText
// are empty when Succeeded is false.
type SegmentResult struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	RawText   string `json:"rawText"`
	Succeeded bool   `json:"succeeded"`
}

// Chunk is one continuous recording take stitched from its segments.
type Chunk struct {
	Index         int           `json:"index"`
	Transcript    string        `json:"transcript"`
	RawTranscript string        `json:"rawTranscript"`
	Success       bool          `json:"success"`
	PatientLang   string        `json:"patientLang"`
	DocLang       string        `json:"docLang"`
	Duration      time.Duration `json:"-"`
	StartedAt     time.Time     `json:"startedAt"`
	RecordingID   string        `json:"recordingId,omitempty"`
}

// Combined is the cross-chunk stitched result handed to note generation.
type Combined struct {
	Transcript    string `json:"transcript"`
	RawTranscript string `json:"rawTranscript"`
	ChunkCount    int    `json:"chunkCount"`
}
