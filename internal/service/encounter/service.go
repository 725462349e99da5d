// Package encounter appends recordings to encounter records, keeps the
// cumulative duration and triggers auto-combine once per encounter when
// the duration threshold is crossed.
package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/observability/metrics"
	"encounter-scribe-service/internal/schema"
	"encounter-scribe-service/internal/storage/sqlite"
)

var (
	ErrNotFound      = sqlite.ErrNotFound
	ErrExists        = sqlite.ErrExists
	ErrCombineFailed = errors.New("combine failed")
)

// finalSoapPaths are tried in order to find the note in a combine result.
var finalSoapPaths = []string{"finalSoap", "soap", "note", "data.finalSoap"}

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, id string, isActive bool) (*models.EncounterRecord, error)
	Get(ctx context.Context, id string) (*models.EncounterRecord, error)
	AppendRecording(ctx context.Context, encounterID string, rec models.Recording, isActive *bool) (sqlite.AppendResult, error)
	ClaimAutoCombine(ctx context.Context, encounterID string, staleAfter time.Duration) (bool, error)
	ReleaseAutoCombine(ctx context.Context, encounterID string) error
	MarkAutoCombined(ctx context.Context, encounterID string, finalSoap json.RawMessage) error
	SetFinalSoap(ctx context.Context, encounterID string, finalSoap json.RawMessage) error
}

// Combiner invokes the external combine service. A nil Combiner disables
// auto-combine.
type Combiner interface {
	Combine(ctx context.Context, req models.CombineRequest) (json.RawMessage, error)
}

// EventPublisher receives encounter events; it may be nil.
type EventPublisher interface {
	PublishEncounter(ctx context.Context, ev models.EncounterEvent) error
}

// storeTimeout bounds claim bookkeeping after a combine call.
const storeTimeout = 5 * time.Second

// Config holds the auto-combine policy.
type Config struct {
	AutoCombineThreshold time.Duration
	CombineTimeout       time.Duration
}

// DefaultConfig returns a 7200s threshold.
func DefaultConfig() Config {
	return Config{
		AutoCombineThreshold: 7200 * time.Second,
		CombineTimeout:       60 * time.Second,
	}
}

// Service implements the encounter operations behind the HTTP API.
type Service struct {
	store     Store
	combiner  Combiner
	events    EventPublisher
	validator *schema.Validator
	cfg       Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates a service.
func New(store Store, combiner Combiner, events EventPublisher, cfg Config) *Service {
	d := DefaultConfig()
	if cfg.AutoCombineThreshold <= 0 {
		cfg.AutoCombineThreshold = d.AutoCombineThreshold
	}
	if cfg.CombineTimeout <= 0 {
		cfg.CombineTimeout = d.CombineTimeout
	}
	return &Service{
		store:     store,
		combiner:  combiner,
		events:    events,
		validator: schema.New(),
		cfg:       cfg,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("encounter-service"),
	}
}

// Threshold returns the auto-combine threshold in seconds.
func (s *Service) Threshold() float64 {
	return s.cfg.AutoCombineThreshold.Seconds()
}

// SaveRecording appends a recording and runs the auto-combine check
// against the total computed by that same append. A failed combine is
// logged and reported only through a null AutoCombineResult.
func (s *Service) SaveRecording(ctx context.Context, req models.SaveRecordingRequest) (*models.SaveRecordingResponse, error) {
	start := time.Now()
	if err := s.validator.ValidateSaveRecording(&req); err != nil {
		s.metrics.RecordRecordingSaved("invalid", time.Since(start).Seconds(), 0)
		return nil, err
	}

	rec := *req.Recording
	if rec.Duration == nil {
		zero := 0.0
		rec.Duration = &zero
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	logger := logging.WithEncounter(req.EncounterID).With().
		Str("component", "encounter-service").
		Str("recordingId", rec.ID).
		Logger()

	appended, err := s.store.AppendRecording(ctx, req.EncounterID, rec, req.IsActive)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNotFound) {
			outcome = "not_found"
		}
		s.metrics.RecordRecordingSaved(outcome, time.Since(start).Seconds(), 0)
		return nil, err
	}

	logger.Info().
		Float64("duration", rec.DurationSeconds()).
		Float64("previousTotal", appended.PreviousTotal).
		Float64("totalDuration", appended.TotalDuration).
		Int("recordings", appended.Recordings).
		Msg("Recording saved")
	s.publish(ctx, models.EncounterEvent{
		EventType:     models.EventRecordingSaved,
		EncounterID:   req.EncounterID,
		RecordingID:   rec.ID,
		TotalDuration: appended.TotalDuration,
	})

	resp := &models.SaveRecordingResponse{
		Success:       true,
		Message:       "Recording saved successfully",
		TotalDuration: appended.TotalDuration,
	}

	if appended.TotalDuration >= s.Threshold() {
		resp.AutoCombineTriggered, resp.AutoCombineResult = s.autoCombine(ctx, logger, req.EncounterID, appended)
		if resp.AutoCombineTriggered {
			resp.Message = "Recording saved successfully; auto-combine triggered"
		}
	}

	s.metrics.RecordRecordingSaved("success", time.Since(start).Seconds(), appended.TotalDuration)
	return resp, nil
}

// autoCombine claims the encounter and calls the combine service. It
// reports whether a combine call was made and its result on success.
func (s *Service) autoCombine(ctx context.Context, logger zerolog.Logger, encounterID string, appended sqlite.AppendResult) (bool, json.RawMessage) {
	if appended.HasFinalSoap || appended.AutoCombined {
		s.metrics.RecordAutoCombine("skipped")
		logger.Debug().
			Bool("hasFinalSoap", appended.HasFinalSoap).
			Bool("autoCombined", appended.AutoCombined).
			Msg("Threshold crossed but encounter already finalized")
		return false, nil
	}

	if s.combiner == nil {
		s.metrics.RecordAutoCombine("skipped")
		logger.Warn().Msg("Threshold crossed but no combine service is configured")
		return false, nil
	}

	// A claim outliving two combine timeouts belongs to a save that died
	// before releasing it.
	claimed, err := s.store.ClaimAutoCombine(ctx, encounterID, 2*s.cfg.CombineTimeout)
	if err != nil {
		s.metrics.RecordAutoCombine("claim_error")
		logger.Error().Err(err).Msg("Failed to claim auto-combine")
		return false, nil
	}
	if !claimed {
		s.metrics.RecordAutoCombine("skipped")
		logger.Info().Msg("Auto-combine already claimed by another save")
		return false, nil
	}

	s.metrics.RecordAutoCombine("triggered")
	logger.Info().
		Float64("totalDuration", appended.TotalDuration).
		Float64("threshold", s.Threshold()).
		Msg("Duration threshold crossed, triggering auto-combine")
	s.publish(ctx, models.EncounterEvent{
		EventType:     models.EventAutoCombineStarted,
		EncounterID:   encounterID,
		TotalDuration: appended.TotalDuration,
	})

	// The combine call is not cancelled with the request once issued.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CombineTimeout)
	defer cancel()

	result, err := s.combiner.Combine(cctx, models.CombineRequest{EncounterID: encounterID, IsAutoCombine: true})
	if err != nil {
		s.metrics.RecordAutoCombine("failed")
		logger.Error().Err(err).Msg("Auto-combine failed, save still succeeds")
		sctx, scancel := s.storeContext(ctx)
		rerr := s.store.ReleaseAutoCombine(sctx, encounterID)
		scancel()
		if rerr != nil {
			logger.Error().Err(rerr).Msg("Failed to release auto-combine claim")
		}
		s.publish(ctx, models.EncounterEvent{
			EventType:     models.EventAutoCombineFailed,
			EncounterID:   encounterID,
			TotalDuration: appended.TotalDuration,
			Error:         err.Error(),
		})
		return true, nil
	}

	sctx, scancel := s.storeContext(ctx)
	err = s.store.MarkAutoCombined(sctx, encounterID, FinalSoap(result))
	scancel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to mark encounter auto-combined")
	}
	s.metrics.RecordAutoCombine("succeeded")
	logger.Info().Msg("Auto-combine succeeded")
	s.publish(ctx, models.EncounterEvent{
		EventType:     models.EventAutoCombineDone,
		EncounterID:   encounterID,
		TotalDuration: appended.TotalDuration,
	})
	return true, result
}

// storeContext bounds the bookkeeping writes that follow a combine call. It
// outlives both the request and an expired combine deadline.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// CreateEncounter creates an empty encounter; id and isActive are optional.
func (s *Service) CreateEncounter(ctx context.Context, req models.CreateEncounterRequest) (*models.EncounterRecord, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rec, err := s.store.Create(ctx, id, active)
	if err != nil {
		return nil, err
	}
	logger := logging.WithEncounter(id)
	logger.Info().Bool("isActive", active).Msg("Encounter created")
	return rec, nil
}

// GetEncounter returns an encounter with its recordings.
func (s *Service) GetEncounter(ctx context.Context, id string) (*models.EncounterRecord, error) {
	return s.store.Get(ctx, id)
}

// Combine runs an explicit, user-requested combine and stores the note.
func (s *Service) Combine(ctx context.Context, id string) (json.RawMessage, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}

	if s.combiner == nil {
		return nil, fmt.Errorf("%w: no combine service configured", ErrCombineFailed)
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CombineTimeout)
	defer cancel()

	result, err := s.combiner.Combine(cctx, models.CombineRequest{EncounterID: id})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCombineFailed, err)
	}
	if soap := FinalSoap(result); soap != nil {
		if err := s.store.SetFinalSoap(ctx, id, soap); err != nil {
			return nil, err
		}
	}
	logger := logging.WithEncounter(id)
	logger.Info().Msg("Encounter combined")
	return result, nil
}

// FinalSoap extracts the note from a combine result, or nil when absent.
func FinalSoap(result json.RawMessage) json.RawMessage {
	if len(result) == 0 {
		return nil
	}
	for _, path := range finalSoapPaths {
		r := gjson.GetBytes(result, path)
		if r.Exists() && r.Type != gjson.Null {
			return json.RawMessage(r.Raw)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev models.EncounterEvent) {
	if s.events == nil {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	if err := s.events.PublishEncounter(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Debug().Err(err).Str("eventType", ev.EventType).Msg("Encounter event publish failed")
	}
}
