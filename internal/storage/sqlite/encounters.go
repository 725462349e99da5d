// Package sqlite stores encounter records and their recordings in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
)

var (
	ErrNotFound = errors.New("encounter not found")
	ErrExists   = errors.New("encounter already exists")
)

// AppendResult reports the encounter state read and written by one append.
type AppendResult struct {
	PreviousTotal float64
	TotalDuration float64
	HasFinalSoap  bool
	AutoCombined  bool
	Recordings    int
}

// EncounterStore persists encounters. All read-modify-write operations run
// in a single immediate transaction.
type EncounterStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*EncounterStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	if path == ":memory:" {
		dsn = "file::memory:?_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: shared.
	db.SetMaxOpenConns(1)

	store, err := NewEncounterStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewEncounterStore creates the schema on db if needed.
func NewEncounterStore(db *sql.DB) (*EncounterStore, error) {
	s := &EncounterStore{
		db:     db,
		logger: logging.WithComponent("sqlite-encounters"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EncounterStore) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS encounters (
			id TEXT PRIMARY KEY,
			total_duration REAL NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			final_soap TEXT,
			auto_combined INTEGER NOT NULL DEFAULT 0,
			auto_combined_at TEXT,
			auto_combine_claimed_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create encounters table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS recordings (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			encounter_id TEXT NOT NULL,
			id TEXT NOT NULL,
			transcript TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			duration REAL,
			audio_url TEXT,
			FOREIGN KEY (encounter_id) REFERENCES encounters(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create recordings table: %w", err)
	}

	if _, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_recordings_encounter_id ON recordings(encounter_id)`); err != nil {
		return fmt.Errorf("failed to create recordings index: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *EncounterStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *EncounterStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts an empty encounter.
func (s *EncounterStore) Create(ctx context.Context, id string, isActive bool) (*models.EncounterRecord, error) {
	now := s.now().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO encounters (id, total_duration, is_active, created_at, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, isActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert encounter: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	return s.Get(ctx, id)
}

// Get returns the encounter with its recordings in append order.
func (s *EncounterStore) Get(ctx context.Context, id string) (*models.EncounterRecord, error) {
	var (
		rec                  models.EncounterRecord
		finalSoap            sql.NullString
		autoCombinedAt       sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, total_duration, is_active, final_soap, auto_combined, auto_combined_at, created_at, updated_at
		FROM encounters WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.TotalDuration, &rec.IsActive, &finalSoap, &rec.AutoCombined, &autoCombinedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query encounter: %w", err)
	}

	if finalSoap.Valid {
		rec.FinalSoap = json.RawMessage(finalSoap.String)
	}
	if autoCombinedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, autoCombinedAt.String); err == nil {
			rec.AutoCombinedAt = &t
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	rec.Recordings, err = s.recordings(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *EncounterStore) recordings(ctx context.Context, encounterID string) ([]models.Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transcript, timestamp, duration, audio_url
		FROM recordings WHERE encounter_id = ? ORDER BY seq`, encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	recordings := []models.Recording{}
	for rows.Next() {
		var (
			r         models.Recording
			timestamp string
			duration  sql.NullFloat64
			audioURL  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Transcript, &timestamp, &duration, &audioURL); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		if duration.Valid {
			d := duration.Float64
			r.Duration = &d
		}
		r.AudioURL = audioURL.String
		recordings = append(recordings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recordings: %w", err)
	}
	return recordings, nil
}

// AppendRecording appends rec and adds its duration to the encounter total.
// The new total is computed from the value read in the same transaction.
// isActive is written only when non-nil.
func (s *EncounterStore) AppendRecording(ctx context.Context, encounterID string, rec models.Recording, isActive *bool) (AppendResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		res       AppendResult
		finalSoap sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT total_duration, final_soap, auto_combined FROM encounters WHERE id = ?`, encounterID,
	).Scan(&res.PreviousTotal, &finalSoap, &res.AutoCombined)
	if errors.Is(err, sql.ErrNoRows) {
		return AppendResult{}, fmt.Errorf("%w: %s", ErrNotFound, encounterID)
	}
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to read encounter: %w", err)
	}
	res.HasFinalSoap = finalSoap.Valid && finalSoap.String != "" && finalSoap.String != "null"
	res.TotalDuration = res.PreviousTotal + rec.DurationSeconds()

	var audioURL sql.NullString
	if rec.AudioURL != "" {
		audioURL = sql.NullString{String: rec.AudioURL, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO recordings (encounter_id, id, transcript, timestamp, duration, audio_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		encounterID, rec.ID, rec.Transcript, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.DurationSeconds(), audioURL,
	)
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to insert recording: %w", err)
	}

	now := s.now().Format(time.RFC3339Nano)
	if isActive != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE encounters SET total_duration = ?, is_active = ?, updated_at = ? WHERE id = ?`,
			res.TotalDuration, *isActive, now, encounterID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE encounters SET total_duration = ?, updated_at = ? WHERE id = ?`,
			res.TotalDuration, now, encounterID,
		)
	}
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to update encounter: %w", err)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recordings WHERE encounter_id = ?`, encounterID,
	).Scan(&res.Recordings); err != nil {
		return AppendResult{}, fmt.Errorf("failed to count recordings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, fmt.Errorf("failed to commit append: %w", err)
	}

	s.logger.Debug().
		Str("encounterId", encounterID).
		Str("recordingId", rec.ID).
		Float64("previousTotal", res.PreviousTotal).
		Float64("totalDuration", res.TotalDuration).
		Msg("Recording appended")
	return res, nil
}

// claimLayout is fixed width so claim timestamps compare lexically.
const claimLayout = "2006-01-02T15:04:05.000000000Z"

// ClaimAutoCombine atomically claims the right to run auto-combine. It
// succeeds only for an encounter with no final note and no completed
// auto-combine whose outstanding claim is absent or older than staleAfter.
// A non-positive staleAfter never reclaims.
func (s *EncounterStore) ClaimAutoCombine(ctx context.Context, encounterID string, staleAfter time.Duration) (bool, error) {
	now := s.now().UTC()
	cutoff := ""
	if staleAfter > 0 {
		cutoff = now.Add(-staleAfter).Format(claimLayout)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE encounters SET auto_combine_claimed_at = ?
		WHERE id = ?
			AND (auto_combine_claimed_at IS NULL OR auto_combine_claimed_at < ?)
			AND auto_combined = 0
			AND (final_soap IS NULL OR final_soap = '' OR final_soap = 'null')`,
		now.Format(claimLayout), encounterID, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim auto-combine: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseAutoCombine drops an outstanding claim so a later save may retry.
func (s *EncounterStore) ReleaseAutoCombine(ctx context.Context, encounterID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE encounters SET auto_combine_claimed_at = NULL WHERE id = ? AND auto_combined = 0`,
		encounterID,
	)
	if err != nil {
		return fmt.Errorf("failed to release auto-combine claim: %w", err)
	}
	return nil
}

// MarkAutoCombined records a successful auto-combine. finalSoap is stored
// when non-empty.
func (s *EncounterStore) MarkAutoCombined(ctx context.Context, encounterID string, finalSoap json.RawMessage) error {
	now := s.now()
	var soap sql.NullString
	if len(finalSoap) > 0 {
		soap = sql.NullString{String: string(finalSoap), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE encounters
		SET auto_combined = 1, auto_combined_at = ?, final_soap = COALESCE(?, final_soap), updated_at = ?
		WHERE id = ?`,
		now.Format(time.RFC3339Nano), soap, now.Format(time.RFC3339Nano), encounterID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark auto-combined: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, encounterID)
	}
	return nil
}

// SetFinalSoap stores the note produced by an explicit combine.
func (s *EncounterStore) SetFinalSoap(ctx context.Context, encounterID string, finalSoap json.RawMessage) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE encounters SET final_soap = ?, is_active = 0, updated_at = ? WHERE id = ?`,
		string(finalSoap), s.now().Format(time.RFC3339Nano), encounterID,
	)
	if err != nil {
		return fmt.Errorf("failed to set final soap: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, encounterID)
	}
	return nil
}
