// Package report renders a human-readable Markdown summary of an
// extraction or reimport run, and converts it to HTML for archiving
// alongside a batch job's output (the game data itself has no viewer; a
// static report is the only artifact anyone reads after the fact).
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/dece/dksarc/internal/orchestrator"
)

// ExtractionReport carries the data rendered by Markdown and RenderHTML.
type ExtractionReport struct {
	OutputDir string
	StartedAt time.Time
	Duration  time.Duration
	Stats     orchestrator.Stats
}

// Markdown renders r as a Markdown document: a summary table of counters
// followed by a note on any errors encountered.
func (r ExtractionReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Extraction report\n\n")
	fmt.Fprintf(&b, "- Output directory: `%s`\n", r.OutputDir)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n\n", r.Duration.Round(time.Millisecond))

	b.WriteString("| Metric | Count |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| External files exported | %d |\n", r.Stats.ExternalFilesExported)
	fmt.Fprintf(&b, "| Packages decompressed | %d |\n", r.Stats.PackagesDecompressed)
	fmt.Fprintf(&b, "| Standalone archives unpacked | %d |\n", r.Stats.StandaloneUnpacked)
	fmt.Fprintf(&b, "| Composed archives unpacked | %d |\n", r.Stats.ComposedUnpacked)
	fmt.Fprintf(&b, "| Errors (logged, non-fatal) | %d |\n", r.Stats.Errors)

	if r.Stats.Errors > 0 {
		b.WriteString("\nSee the run's log output for the specific files each error applied to; ")
		b.WriteString("a per-file failure is skipped rather than aborting the run.\n")
	}

	return b.String()
}

// RenderHTML converts r's Markdown form to a standalone HTML fragment.
func RenderHTML(r ExtractionReport) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(r.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("rendering report to HTML: %w", err)
	}
	return buf.String(), nil
}
