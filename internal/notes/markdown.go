package notes

import (
	"fmt"
	"strings"
	"time"

	"encounter-scribe-service/internal/models"
)

// Markdown renders a note and the chunks it came from as a markdown
// document. Chunks without speech are listed but have no transcript.
func Markdown(encounterID string, note Note, chunks []models.Chunk) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Encounter %s\n\n", encounterID)
	if !note.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s by %s from %d chunk(s)._\n\n", note.GeneratedAt.Format(time.RFC3339), note.Model, note.ChunkCount)
	}

	b.WriteString("## Note\n\n")
	if content := strings.TrimSpace(note.Content); content != "" {
		b.WriteString(content)
	} else {
		b.WriteString("_No note generated._")
	}
	b.WriteString("\n\n## Transcript\n")

	for _, c := range chunks {
		fmt.Fprintf(&b, "\n### Chunk %d", c.Index)
		if c.Duration > 0 {
			fmt.Fprintf(&b, " (%s)", c.Duration.Round(time.Second))
		}
		b.WriteString("\n\n")
		if !c.Success {
			b.WriteString("_No speech detected._\n")
			continue
		}
		b.WriteString(c.Transcript)
		b.WriteString("\n")
	}
	return b.String()
}
