package schema

import (
	"errors"
	"fmt"
	"testing"

	"encounter-scribe-service/internal/models"
)

func TestValidateSaveRecording(t *testing.T) {
	negative := -1.0
	ten := 10.0

	tests := []struct {
		name string
		req  *models.SaveRecordingRequest
		want error
	}{
		{"nil request", nil, ErrMissingEncounterID},
		{"missing encounter", &models.SaveRecordingRequest{Recording: &models.Recording{ID: "r1"}}, ErrMissingEncounterID},
		{"blank encounter", &models.SaveRecordingRequest{EncounterID: "  ", Recording: &models.Recording{ID: "r1"}}, ErrMissingEncounterID},
		{"missing recording", &models.SaveRecordingRequest{EncounterID: "enc-1"}, ErrMissingRecording},
		{"negative duration", &models.SaveRecordingRequest{EncounterID: "enc-1", Recording: &models.Recording{ID: "r1", Duration: &negative}}, ErrInvalidRecording},
		{"no duration", &models.SaveRecordingRequest{EncounterID: "enc-1", Recording: &models.Recording{ID: "r1"}}, nil},
		{"with duration", &models.SaveRecordingRequest{EncounterID: "enc-1", Recording: &models.Recording{ID: "r1", Duration: &ten}}, nil},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateSaveRecording(tt.req)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !IsValidation(err) {
				t.Errorf("expected IsValidation to be true for %v", err)
			}
		})
	}
}

func TestIsValidation_OtherErrors(t *testing.T) {
	if IsValidation(errors.New("boom")) {
		t.Error("expected unrelated error not to be a validation error")
	}
	if !IsValidation(fmt.Errorf("wrapped: %w", ErrMissingRecording)) {
		t.Error("expected wrapped validation error to be detected")
	}
}
