// Package schema validates inbound API payloads before they reach the
// encounter service.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/models"
)

// Validation errors. All of them map to 400 at the HTTP layer.
var (
	ErrMissingEncounterID = errors.New("encounterId is required")
	ErrMissingRecording   = errors.New("recording is required")
	ErrInvalidRecording   = errors.New("invalid recording")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateSaveRecording checks the required fields of a save request.
func (v *Validator) ValidateSaveRecording(req *models.SaveRecordingRequest) error {
	if req == nil || strings.TrimSpace(req.EncounterID) == "" {
		return ErrMissingEncounterID
	}
	if req.Recording == nil {
		return ErrMissingRecording
	}
	if req.Recording.Duration != nil && *req.Recording.Duration < 0 {
		return fmt.Errorf("%w: negative duration %v", ErrInvalidRecording, *req.Recording.Duration)
	}

	log.Debug().
		Str("encounterId", req.EncounterID).
		Str("recordingId", req.Recording.ID).
		Msg("Save request validated")
	return nil
}

// IsValidation reports whether err is one of the validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingEncounterID) ||
		errors.Is(err, ErrMissingRecording) ||
		errors.Is(err, ErrInvalidRecording)
}
