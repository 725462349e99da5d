// Package chunk drives a recording session through up to a fixed number of
// chunks, each captured, transcribed segment by segment and stitched, and
// finally combines the successful chunks for note generation.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/notes"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/observability/metrics"
	"encounter-scribe-service/internal/service/audio"
	"encounter-scribe-service/internal/service/stitch"
	"encounter-scribe-service/internal/service/stt"
	"encounter-scribe-service/internal/service/transcription"
)

var (
	ErrChunkLimit        = errors.New("chunk limit reached")
	ErrInvalidState      = errors.New("invalid orchestrator state")
	ErrNoSpeech          = errors.New("no speech detected")
	ErrAlreadyCombined   = errors.New("chunks already combined")
	ErrNothingToCombine  = errors.New("no successful chunks to combine")
	ErrRecordingNotSaved = errors.New("chunk recording not saved")
)

// Config holds the flow's policy constants.
type Config struct {
	MaxChunks         int
	DrainPollInterval time.Duration
	DrainTimeout      time.Duration
	FinalizeDelay     time.Duration
	SaveTimeout       time.Duration
	Queue             transcription.Config
	// AudioURL returns the location of a chunk's persisted audio; optional.
	AudioURL func(encounterID string, chunkIndex int) string
}

// DefaultConfig returns four chunks, 500ms drain polling and a 120s drain ceiling.
func DefaultConfig() Config {
	return Config{
		MaxChunks:         4,
		DrainPollInterval: 500 * time.Millisecond,
		DrainTimeout:      120 * time.Second,
		FinalizeDelay:     2 * time.Second,
		SaveTimeout:       90 * time.Second,
		Queue:             transcription.DefaultConfig(),
	}
}

// Session identifies the encounter being recorded and its languages.
type Session struct {
	EncounterID     string
	PatientLanguage string
	DocLanguage     string
}

// SourceOpener opens the audio input for a chunk. Capture errors such as a
// missing or denied microphone surface here.
type SourceOpener func() (audio.Source, error)

// RecordingSaver persists a completed chunk to the encounter record.
type RecordingSaver interface {
	SaveRecording(ctx context.Context, req models.SaveRecordingRequest) (*models.SaveRecordingResponse, error)
}

// EventSink receives transcript events for downstream consumers.
type EventSink interface {
	PublishLive(ctx context.Context, ev models.LiveTranscriptEvent) error
	PublishChunk(ctx context.Context, ev models.ChunkCompletedEvent) error
}

// Hooks are called from orchestrator goroutines; all are optional.
type Hooks struct {
	OnState    func(state State, chunkIndex int)
	OnLive     func(chunkIndex int, update transcription.Update)
	OnChunk    func(outcome Outcome)
	OnCombined func(result Result)
}

// Deps are the orchestrator's collaborators. Saver, Notes and Events may be nil.
type Deps struct {
	Converter stt.Converter
	Capturer  *audio.Capturer
	Saver     RecordingSaver
	Notes     notes.Generator
	Events    EventSink
}

// Outcome describes one completed chunk.
type Outcome struct {
	Chunk   models.Chunk
	Stop    audio.StopResult
	Drained bool
	Saved   *models.SaveRecordingResponse
	SaveErr error
	Next    State
}

// Err returns ErrNoSpeech for an empty chunk, otherwise the save error.
func (o Outcome) Err() error {
	if !o.Chunk.Success {
		return ErrNoSpeech
	}
	if o.SaveErr != nil {
		return fmt.Errorf("%w: %v", ErrRecordingNotSaved, o.SaveErr)
	}
	return nil
}

// Result is the outcome of combine-now.
type Result struct {
	Combined models.Combined
	Note     notes.Note
	Auto     bool
	Err      error
}

type take struct {
	index    int
	ctx      context.Context
	queue    *transcription.Queue
	started  time.Time
	captured <-chan struct{}
	finished chan struct{}
	outcome  Outcome
}

// Orchestrator owns the ordered chunk list of one recording flow.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	session Session
	hooks   Hooks
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu        sync.Mutex
	state     State
	chunks    []models.Chunk
	current   *take
	combined  bool
	result    *Result
	finalize  *time.Timer
	finalized chan struct{}
}

// New creates an orchestrator in the Idle state for chunk 1.
func New(cfg Config, deps Deps, session Session, hooks Hooks) *Orchestrator {
	d := DefaultConfig()
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = d.MaxChunks
	}
	if cfg.DrainPollInterval <= 0 {
		cfg.DrainPollInterval = d.DrainPollInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = d.DrainTimeout
	}
	if cfg.FinalizeDelay < 0 {
		cfg.FinalizeDelay = d.FinalizeDelay
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = d.SaveTimeout
	}
	if deps.Notes == nil {
		deps.Notes = notes.NoopGenerator{}
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		session:   session,
		hooks:     hooks,
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithEncounter(session.EncounterID).With().Str("component", "chunk-orchestrator").Logger(),
		state:     StateIdle,
		finalized: make(chan struct{}),
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Chunks returns a copy of the completed chunks in completion order.
func (o *Orchestrator) Chunks() []models.Chunk {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Chunk(nil), o.chunks...)
}

// NextIndex returns the index the next chunk would take, starting at 1.
func (o *Orchestrator) NextIndex() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.chunks) + 1
}

// Remaining returns how many chunks may still be recorded.
func (o *Orchestrator) Remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.MaxChunks - len(o.chunks)
}

// Finalized is closed once combine-now has run and OnCombined returned.
func (o *Orchestrator) Finalized() <-chan struct{} {
	return o.finalized
}

// Result returns the combine result once finalized.
func (o *Orchestrator) Result() (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return Result{}, false
	}
	return *o.result, true
}

// Live returns the running transcript of the chunk being recorded or drained.
func (o *Orchestrator) Live() models.LiveTranscript {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t == nil {
		return models.LiveTranscript{}
	}
	return t.queue.Live()
}

// StartChunk opens the audio source and begins recording the next chunk.
func (o *Orchestrator) StartChunk(ctx context.Context, open SourceOpener) error {
	o.mu.Lock()
	if o.combined {
		o.mu.Unlock()
		return ErrAlreadyCombined
	}
	if len(o.chunks) >= o.cfg.MaxChunks {
		o.mu.Unlock()
		return fmt.Errorf("%w: %d of %d recorded", ErrChunkLimit, len(o.chunks), o.cfg.MaxChunks)
	}
	if !o.state.CanStart() {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot start chunk while %s", ErrInvalidState, state)
	}
	prev := o.state
	index := len(o.chunks) + 1
	o.state = StateRecording
	o.mu.Unlock()

	revert := func() {
		o.mu.Lock()
		o.state = prev
		o.mu.Unlock()
	}

	src, err := open()
	if err != nil {
		revert()
		return fmt.Errorf("open audio source: %w", err)
	}

	hints := stt.Hints{
		PatientLanguage: o.session.PatientLanguage,
		DocLanguage:     o.session.DocLanguage,
		EncounterID:     o.session.EncounterID,
		ChunkIndex:      index,
	}
	q := transcription.New(ctx, o.deps.Converter, o.cfg.Queue, hints, o.liveUpdate(ctx, index))
	logger := o.log.With().Int("chunkIndex", index).Logger()

	emit := func(seg models.Segment) {
		if err := q.Enqueue(seg); err != nil {
			logger.Warn().Err(err).Int("segmentIndex", seg.Index).Msg("Segment dropped")
		}
	}
	if err := o.deps.Capturer.Start(ctx, src, o.session.EncounterID, index, emit); err != nil {
		q.Close()
		src.Close()
		revert()
		return fmt.Errorf("start capture: %w", err)
	}

	t := &take{
		index:    index,
		ctx:      ctx,
		queue:    q,
		started:  time.Now(),
		captured: o.deps.Capturer.Done(),
		finished: make(chan struct{}),
	}
	o.mu.Lock()
	o.current = t
	o.mu.Unlock()

	logger.Info().Int("remaining", o.cfg.MaxChunks-index).Msg("Chunk started")
	o.notifyState(StateRecording, index)

	go o.watch(t)
	return nil
}

// StopChunk stops the recording and waits for the chunk to complete.
func (o *Orchestrator) StopChunk(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	t := o.current
	state := o.state
	o.mu.Unlock()

	if t == nil {
		return Outcome{}, fmt.Errorf("%w: no chunk in progress (%s)", ErrInvalidState, state)
	}
	if state == StateRecording {
		if _, err := o.deps.Capturer.Stop(); err != nil && !errors.Is(err, audio.ErrNotRecording) {
			return Outcome{}, err
		}
	}
	return o.wait(ctx, t)
}

// Wait blocks until the chunk in progress completes, which also happens
// when the safety cap stops the recording.
func (o *Orchestrator) Wait(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t == nil {
		return Outcome{}, fmt.Errorf("%w: no chunk in progress", ErrInvalidState)
	}
	return o.wait(ctx, t)
}

func (o *Orchestrator) wait(ctx context.Context, t *take) (Outcome, error) {
	select {
	case <-t.finished:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (o *Orchestrator) watch(t *take) {
	<-t.captured
	stop, _ := o.deps.Capturer.Stop()

	o.setState(StateDraining, t.index)
	t.queue.Close()
	drained := o.drain(t)
	if !drained {
		t.queue.Abort()
	}

	text, raw := stitch.Segments(t.queue.Results())
	chunk := models.Chunk{
		Index:         t.index,
		Transcript:    text,
		RawTranscript: raw,
		Success:       strings.TrimSpace(text) != "",
		PatientLang:   o.session.PatientLanguage,
		DocLang:       o.session.DocLanguage,
		Duration:      stop.Elapsed,
		StartedAt:     t.started,
	}
	o.setState(StateChunkComplete, t.index)

	outcome := Outcome{Chunk: chunk, Stop: stop, Drained: drained}
	if chunk.Success {
		outcome.Saved, outcome.SaveErr = o.persist(t, &outcome.Chunk)
	}

	o.mu.Lock()
	o.chunks = append(o.chunks, outcome.Chunk)
	next := StatePromptNext
	if len(o.chunks) >= o.cfg.MaxChunks {
		next = StateAutoFinalize
	}
	outcome.Next = next
	o.state = next
	o.current = nil
	if next == StateAutoFinalize {
		base := context.WithoutCancel(t.ctx)
		o.finalize = time.AfterFunc(o.cfg.FinalizeDelay, func() { o.autoFinalize(base) })
	}
	o.mu.Unlock()

	o.metrics.RecordChunkCompleted(chunk.Success, stop.Elapsed.Seconds())
	logger := o.log.With().Int("chunkIndex", t.index).Logger()
	ev := logger.Info()
	if !chunk.Success {
		ev = logger.Warn().Err(ErrNoSpeech)
	}
	ev.Str("stopReason", string(stop.Reason)).
		Dur("elapsed", stop.Elapsed).
		Bool("drained", drained).
		Int("chars", len(chunk.Transcript)).
		Str("next", next.String()).
		Msg("Chunk complete")

	o.publishChunk(t.ctx, outcome.Chunk)
	if o.hooks.OnChunk != nil {
		o.hooks.OnChunk(outcome)
	}
	o.notifyState(next, t.index)

	t.outcome = outcome
	close(t.finished)
}

// drain polls the queue until nothing is pending or the ceiling passes.
func (o *Orchestrator) drain(t *take) bool {
	if t.queue.Pending() == 0 {
		return true
	}
	ticker := time.NewTicker(o.cfg.DrainPollInterval)
	defer ticker.Stop()
	ceiling := time.NewTimer(o.cfg.DrainTimeout)
	defer ceiling.Stop()

	for {
		select {
		case <-ticker.C:
			if t.queue.Pending() == 0 {
				return true
			}
		case <-ceiling.C:
			o.log.Warn().
				Int("chunkIndex", t.index).
				Int("pending", t.queue.Pending()).
				Dur("drainTimeout", o.cfg.DrainTimeout).
				Msg("Drain ceiling reached, stitching available results")
			return false
		case <-t.ctx.Done():
			return false
		}
	}
}

func (o *Orchestrator) persist(t *take, chunk *models.Chunk) (*models.SaveRecordingResponse, error) {
	if o.deps.Saver == nil {
		return nil, nil
	}
	duration := chunk.Duration.Seconds()
	rec := &models.Recording{
		ID:         uuid.NewString(),
		Transcript: chunk.Transcript,
		Timestamp:  time.Now().UTC(),
		Duration:   &duration,
	}
	if o.cfg.AudioURL != nil {
		rec.AudioURL = o.cfg.AudioURL(o.session.EncounterID, chunk.Index)
	}
	active := true

	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), o.cfg.SaveTimeout)
	defer cancel()
	resp, err := o.deps.Saver.SaveRecording(ctx, models.SaveRecordingRequest{
		EncounterID: o.session.EncounterID,
		Recording:   rec,
		IsActive:    &active,
	})
	if err != nil {
		o.log.Error().Err(err).Int("chunkIndex", chunk.Index).Msg("Failed to save chunk recording")
		return nil, err
	}
	chunk.RecordingID = rec.ID
	o.log.Info().
		Int("chunkIndex", chunk.Index).
		Str("recordingId", rec.ID).
		Float64("totalDuration", resp.TotalDuration).
		Bool("autoCombineTriggered", resp.AutoCombineTriggered).
		Msg("Chunk recording saved")
	return resp, nil
}

// CombineNow stitches the successful chunks in index order and hands the
// result to note generation. It runs at most once per flow.
func (o *Orchestrator) CombineNow(ctx context.Context) (Result, error) {
	return o.combine(ctx, false)
}

func (o *Orchestrator) autoFinalize(ctx context.Context) {
	if _, err := o.combine(ctx, true); err != nil && !errors.Is(err, ErrAlreadyCombined) {
		o.log.Warn().Err(err).Msg("Auto-finalize combine failed")
	}
}

func (o *Orchestrator) combine(ctx context.Context, auto bool) (Result, error) {
	o.mu.Lock()
	if o.combined {
		o.mu.Unlock()
		return Result{}, ErrAlreadyCombined
	}
	if !o.state.CanCombine() {
		state := o.state
		o.mu.Unlock()
		return Result{}, fmt.Errorf("%w: cannot combine while %s", ErrInvalidState, state)
	}
	combined := stitch.Chunks(o.chunks)
	if combined.ChunkCount == 0 && o.state != StateAutoFinalize {
		o.mu.Unlock()
		return Result{}, ErrNothingToCombine
	}
	o.combined = true
	o.state = StateFinalized
	if o.finalize != nil {
		o.finalize.Stop()
	}
	last := len(o.chunks)
	o.mu.Unlock()

	o.metrics.RecordCombine()
	o.notifyState(StateFinalized, last)

	res := Result{Combined: combined, Auto: auto}
	if combined.ChunkCount == 0 {
		res.Err = ErrNothingToCombine
	} else {
		res.Note, res.Err = o.deps.Notes.Generate(ctx, combined)
	}

	ev := o.log.Info()
	if res.Err != nil {
		ev = o.log.Warn().Err(res.Err)
	}
	ev.Bool("auto", auto).
		Int("chunks", combined.ChunkCount).
		Int("chars", len(combined.Transcript)).
		Msg("Chunks combined")

	o.mu.Lock()
	o.result = &res
	o.mu.Unlock()

	if o.hooks.OnCombined != nil {
		o.hooks.OnCombined(res)
	}
	close(o.finalized)
	return res, res.Err
}

// Close stops a pending auto-finalize, aborts an in-progress chunk and
// waits for captured audio to reach the sink.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.finalize != nil {
		o.finalize.Stop()
	}
	t := o.current
	o.mu.Unlock()

	if t != nil {
		o.deps.Capturer.Stop()
		t.queue.Abort()
	}
	o.deps.Capturer.WaitPersist()
}

func (o *Orchestrator) liveUpdate(ctx context.Context, index int) func(transcription.Update) {
	return func(u transcription.Update) {
		if o.deps.Events != nil {
			err := o.deps.Events.PublishLive(ctx, models.LiveTranscriptEvent{
				EventType:    models.EventLiveTranscript,
				EncounterID:  o.session.EncounterID,
				ChunkIndex:   index,
				SegmentIndex: u.Result.Index,
				Succeeded:    u.Result.Succeeded,
				Text:         u.Live.Text,
				RawText:      u.Live.RawText,
				Pending:      u.Live.Pending,
				Timestamp:    time.Now().UnixMilli(),
			})
			if err != nil {
				o.log.Debug().Err(err).Msg("Live transcript publish failed")
			}
		}
		if o.hooks.OnLive != nil {
			o.hooks.OnLive(index, u)
		}
	}
}

func (o *Orchestrator) publishChunk(ctx context.Context, chunk models.Chunk) {
	if o.deps.Events == nil {
		return
	}
	err := o.deps.Events.PublishChunk(context.WithoutCancel(ctx), models.ChunkCompletedEvent{
		EventType:       models.EventChunkCompleted,
		EncounterID:     o.session.EncounterID,
		ChunkIndex:      chunk.Index,
		Success:         chunk.Success,
		Transcript:      chunk.Transcript,
		RawTranscript:   chunk.RawTranscript,
		DurationSeconds: chunk.Duration.Seconds(),
		Timestamp:       time.Now().UnixMilli(),
	})
	if err != nil {
		o.log.Debug().Err(err).Msg("Chunk event publish failed")
	}
}

func (o *Orchestrator) setState(s State, chunkIndex int) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.notifyState(s, chunkIndex)
}

func (o *Orchestrator) notifyState(s State, chunkIndex int) {
	if o.hooks.OnState != nil {
		o.hooks.OnState(s, chunkIndex)
	}
}
