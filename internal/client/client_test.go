package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"encounter-scribe-service/internal/models"
)

func TestSaveRecording(t *testing.T) {
	var got models.SaveRecordingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/recordings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"message":"Recording saved","autoCombineTriggered":true,"autoCombineResult":{"finalSoap":"x"},"totalDuration":7250}`))
	}))
	defer srv.Close()

	d := 200.0
	resp, err := New(srv.URL+"/", time.Second).SaveRecording(context.Background(), models.SaveRecordingRequest{
		EncounterID: "enc-1",
		Recording:   &models.Recording{ID: "r1", Transcript: "knee pain", Duration: &d},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.EncounterID != "enc-1" || got.Recording == nil || got.Recording.Transcript != "knee pain" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if !resp.Success || !resp.AutoCombineTriggered || resp.TotalDuration != 7250 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
		message  string
		details  string
	}{
		{"not found", http.StatusNotFound, `{"error":"Encounter not found"}`, true, "Encounter not found", ""},
		{"bad request", http.StatusBadRequest, `{"error":"encounterId is required"}`, false, "encounterId is required", ""},
		{"server error", http.StatusInternalServerError, `{"error":"Failed to save recording","details":"disk full"}`, false, "Failed to save recording", "disk full"},
		{"no body", http.StatusBadGateway, ``, false, "Bad Gateway", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).SaveRecording(context.Background(), models.SaveRecordingRequest{EncounterID: "enc-1"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.message || apiErr.Details != tt.details {
				t.Errorf("unexpected error: %+v", apiErr)
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Errorf("expected ErrNotFound match %v, got %v", tt.notFound, !tt.notFound)
			}
		})
	}
}

func TestEncounterCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/encounters", func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateEncounterRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.EncounterRecord{ID: req.ID, IsActive: true})
	})
	mux.HandleFunc("GET /v1/encounters/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.EncounterRecord{ID: r.PathValue("id"), TotalDuration: 42})
	})
	mux.HandleFunc("POST /v1/encounters/{id}/combine", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"finalSoap":"` + r.PathValue("id") + `"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	created, err := c.CreateEncounter(ctx, "enc-9")
	if err != nil || created.ID != "enc-9" || !created.IsActive {
		t.Fatalf("unexpected create result: %+v, %v", created, err)
	}

	rec, err := c.GetEncounter(ctx, "enc-9")
	if err != nil || rec.TotalDuration != 42 {
		t.Fatalf("unexpected get result: %+v, %v", rec, err)
	}

	result, err := c.Combine(ctx, "enc-9")
	if err != nil || string(result) != `{"finalSoap":"enc-9"}` {
		t.Fatalf("unexpected combine result: %s, %v", result, err)
	}
}

func TestContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(srv.URL, time.Second).GetEncounter(ctx, "enc-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
