package models

import (
	"encoding/json"
	"time"
)

// Recording is the persisted unit appended to an encounter after a chunk
// completes. Duration is wall-clock seconds and may be omitted.
type Recording struct {
	ID         string    `json:"id"`
	Transcript string    `json:"transcript"`
	Timestamp  time.Time `json:"timestamp"`
	Duration   *float64  `json:"duration,omitempty"`
	AudioURL   string    `json:"audioUrl,omitempty"`
}

// DurationSeconds returns the recording duration, treating unset as zero.
func (r Recording) DurationSeconds() float64 {
	if r.Duration == nil {
		return 0
	}
	return *r.Duration
}

// EncounterRecord is the persisted encounter aggregate.
type EncounterRecord struct {
	ID             string          `json:"id"`
	Recordings     []Recording     `json:"recordings"`
	TotalDuration  float64         `json:"totalDuration"`
	IsActive       bool            `json:"isActive"`
	FinalSoap      json.RawMessage `json:"finalSoap,omitempty"`
	AutoCombined   bool            `json:"autoCombined"`
	AutoCombinedAt *time.Time      `json:"autoCombinedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// HasFinalSoap reports whether the encounter has already been finalized.
func (e *EncounterRecord) HasFinalSoap() bool {
	return len(e.FinalSoap) > 0 && string(e.FinalSoap) != "null"
}

// SaveRecordingRequest is the body of the recording save endpoint.
type SaveRecordingRequest struct {
	EncounterID string     `json:"encounterId"`
	Recording   *Recording `json:"recording"`
	IsActive    *bool      `json:"isActive,omitempty"`
}

// SaveRecordingResponse is returned by the recording save endpoint.
// AutoCombineResult is null when no combine ran or the combine failed.
type SaveRecordingResponse struct {
	Success              bool            `json:"success"`
	Message              string          `json:"message"`
	AutoCombineTriggered bool            `json:"autoCombineTriggered"`
	AutoCombineResult    json.RawMessage `json:"autoCombineResult"`
	TotalDuration        float64         `json:"totalDuration"`
}

// CreateEncounterRequest is the body of the encounter create endpoint.
type CreateEncounterRequest struct {
	ID       string `json:"id,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// CombineRequest is sent to the combine service.
type CombineRequest struct {
	EncounterID   string `json:"encounterId"`
	IsAutoCombine bool   `json:"isAutoCombine,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
