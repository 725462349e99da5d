package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/config"
	"encounter-scribe-service/internal/notes"
	"encounter-scribe-service/internal/service/audio"
	"encounter-scribe-service/internal/service/audio/mic"
	"encounter-scribe-service/internal/service/chunk"
	"encounter-scribe-service/internal/service/transcription"
)

type recorder struct {
	encounterID string
	out         string
	paced       bool
	cfg         *config.Configuration
	capturer    *audio.Capturer
	orch        *chunk.Orchestrator
}

func (r *recorder) hooks() chunk.Hooks {
	return chunk.Hooks{
		OnState: func(state chunk.State, chunkIndex int) {
			log.Info().Str("state", state.String()).Int("chunk", chunkIndex).Msg("State changed")
		},
		OnLive: func(chunkIndex int, u transcription.Update) {
			fmt.Println(liveLine(chunkIndex, r.capturer.Elapsed(), u))
		},
		OnChunk: func(o chunk.Outcome) {
			if err := o.Err(); err != nil {
				log.Warn().Err(err).Int("chunk", o.Chunk.Index).Msg("Chunk finished without a saved recording")
			}
			fmt.Println(chunkLine(o, r.orch.Remaining()))
			if o.Saved != nil && o.Saved.AutoCombineTriggered {
				fmt.Println("Encounter reached its duration limit; the server combined it.")
			}
		},
		OnCombined: r.export,
	}
}

// liveLine formats a live transcript update. Chunk indices are 1-based.
func liveLine(chunkIndex int, elapsed time.Duration, u transcription.Update) string {
	return fmt.Sprintf("\r[chunk %d, %s, %d pending] %s", chunkIndex, elapsed.Round(time.Second), u.Live.Pending, u.Live.Text)
}

func chunkLine(o chunk.Outcome, remaining int) string {
	return fmt.Sprintf("Chunk %d complete (%s). %d chunk(s) remaining.", o.Chunk.Index, o.Stop.Reason, remaining)
}

// replay records one chunk per file and combines when the files run out or
// the chunk cap finalizes the flow.
func (r *recorder) replay(ctx context.Context, files []string) error {
	for _, path := range files {
		if r.orch.State() == chunk.StateAutoFinalize || r.orch.State() == chunk.StateFinalized {
			break
		}
		path := strings.TrimSpace(path)
		err := r.orch.StartChunk(ctx, func() (audio.Source, error) {
			src, err := audio.OpenWAV(path, r.paced)
			if err != nil {
				return nil, err
			}
			return src, nil
		})
		if errors.Is(err, chunk.ErrChunkLimit) {
			log.Warn().Str("file", path).Msg("Chunk limit reached, skipping remaining files")
			break
		}
		if err != nil {
			return err
		}
		if _, err := r.orch.Wait(ctx); err != nil {
			return err
		}
	}
	return r.finish(ctx)
}

// interactive drives the flow from line commands on in.
func (r *recorder) interactive(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(strings.ToLower(scanner.Text()))
		}
	}()

	fmt.Println("Press Enter to start recording, Enter again to stop. 'c' combines now, 'q' quits.")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.orch.Finalized():
			return nil
		case line, ok := <-lines:
			if !ok {
				return r.finish(ctx)
			}
			if err := r.command(ctx, line); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				fmt.Println("Error:", err)
			}
		}
	}
}

func (r *recorder) command(ctx context.Context, line string) error {
	switch line {
	case "":
		if r.orch.State() == chunk.StateRecording {
			_, err := r.orch.StopChunk(ctx)
			return err
		}
		return r.orch.StartChunk(ctx, func() (audio.Source, error) {
			src, err := mic.Open(r.cfg.Capture.SampleRateHz, r.cfg.Capture.Channels)
			if err != nil {
				return nil, err
			}
			return src, nil
		})
	case "c", "combine":
		_, err := r.orch.CombineNow(ctx)
		return err
	case "q", "quit":
		if r.orch.State() == chunk.StateRecording {
			if _, err := r.orch.StopChunk(ctx); err != nil {
				return err
			}
		}
		return io.EOF
	default:
		return fmt.Errorf("unknown command %q", line)
	}
}

// finish combines if nothing has yet, or waits for the pending auto-finalize.
func (r *recorder) finish(ctx context.Context) error {
	if r.orch.State() == chunk.StateAutoFinalize {
		select {
		case <-r.orch.Finalized():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if _, done := r.orch.Result(); done {
		return nil
	}
	_, err := r.orch.CombineNow(ctx)
	switch {
	case errors.Is(err, chunk.ErrInvalidState):
		return nil
	case errors.Is(err, chunk.ErrNothingToCombine):
		log.Warn().Str("encounterId", r.encounterID).Msg("No speech recorded, nothing to combine")
		return nil
	}
	return err
}

func (r *recorder) export(res chunk.Result) {
	if res.Err != nil {
		log.Error().Err(res.Err).Bool("auto", res.Auto).Msg("Combine failed")
		return
	}
	md := notes.Markdown(r.encounterID, res.Note, r.orch.Chunks())
	if r.out == "" {
		fmt.Println(md)
		return
	}
	if err := os.WriteFile(r.out, []byte(md), 0o644); err != nil {
		log.Error().Err(err).Str("path", r.out).Msg("Failed to write note")
		return
	}
	log.Info().Str("path", r.out).Int("chunks", res.Combined.ChunkCount).Msg("Note written")
}
