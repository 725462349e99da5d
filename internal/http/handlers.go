package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/schema"
	"encounter-scribe-service/internal/service/encounter"
)

// maxBodyBytes bounds request bodies; transcripts of a long chunk fit easily.
const maxBodyBytes = 8 << 20

type handlers struct {
	svc EncounterService
}

// saveRecording appends a recording: 400 on a missing encounterId or
// recording, 404 for an unknown encounter, 500 otherwise.
func (h *handlers) saveRecording(w http.ResponseWriter, r *http.Request) {
	var req models.SaveRecordingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	resp, err := h.svc.SaveRecording(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case schema.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, encounter.ErrNotFound):
		writeError(w, http.StatusNotFound, "Encounter not found", "")
	default:
		log.Error().Err(err).Str("encounterId", req.EncounterID).Msg("Failed to save recording")
		writeError(w, http.StatusInternalServerError, "Failed to save recording", err.Error())
	}
}

func (h *handlers) createEncounter(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEncounterRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	rec, err := h.svc.CreateEncounter(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, rec)
	case errors.Is(err, encounter.ErrExists):
		writeError(w, http.StatusConflict, "Encounter already exists", "")
	default:
		log.Error().Err(err).Msg("Failed to create encounter")
		writeError(w, http.StatusInternalServerError, "Failed to create encounter", err.Error())
	}
}

func (h *handlers) getEncounter(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetEncounter(r.Context(), chi.URLParam(r, "encounterId"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, encounter.ErrNotFound):
		writeError(w, http.StatusNotFound, "Encounter not found", "")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to load encounter", err.Error())
	}
}

func (h *handlers) combine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "encounterId")
	result, err := h.svc.Combine(r.Context(), id)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result)
	case errors.Is(err, encounter.ErrNotFound):
		writeError(w, http.StatusNotFound, "Encounter not found", "")
	case errors.Is(err, encounter.ErrCombineFailed):
		log.Warn().Err(err).Str("encounterId", id).Msg("Combine failed")
		writeError(w, http.StatusBadGateway, "Combine failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Failed to combine encounter", err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Details: details})
}
