// Package audiostore persists segment audio as WAV files on disk.
package audiostore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/wav"
)

// DirSink writes <root>/<encounter>/chunk-<c>/segment-<i>.wav.
type DirSink struct {
	root string
}

// NewDirSink creates the root directory if needed.
func NewDirSink(root string) (*DirSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &DirSink{root: root}, nil
}

// Save writes the segment and returns its file URL.
func (s *DirSink) Save(ctx context.Context, encounterID string, seg models.Segment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.ChunkDir(encounterID, seg.ChunkIndex)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chunk dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("segment-%03d.wav", seg.Index))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, wav.Encode(seg.Audio, seg.SampleRateHz, max(seg.Channels, 1)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write segment audio: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalize segment audio: %w", err)
	}
	return "file://" + path, nil
}

// ChunkDir returns the directory holding one chunk's segments.
func (s *DirSink) ChunkDir(encounterID string, chunkIndex int) string {
	return filepath.Join(s.root, filepath.Base(encounterID), fmt.Sprintf("chunk-%d", chunkIndex))
}

// ChunkURL returns the URL recorded on a chunk's Recording.
func (s *DirSink) ChunkURL(encounterID string, chunkIndex int) string {
	return "file://" + s.ChunkDir(encounterID, chunkIndex)
}
