// package formatter exports cached playlists to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Format is an export format.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "md"
	Text     Format = "txt"
)

// ParseFormat accepts a format name or a common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "txt", "text", "":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (csv, md, txt)", shared.ErrInvalidArgument, s)
	}
}

// FormatBPM renders a tempo, or "-" when unknown.
func FormatBPM(bpm float64) string {
	if bpm <= 0 {
		return "-"
	}
	return strconv.FormatFloat(bpm, 'f', 1, 64)
}

// FormatMeter renders a time signature as n/4, or "-" when unknown.
func FormatMeter(sig int) string {
	if sig <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d/4", sig)
}

// ExportToCSV converts a playlist to CSV format with columns: ID, Name, Artist, Album, BPM, TimeSignature, Playable, Local
func ExportToCSV(entry *models.PlaylistEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artist", "Album", "BPM", "TimeSignature", "Playable", "Local"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range entry.Tracks {
		record := []string{
			track.ID,
			track.Name,
			track.Artist,
			track.Album,
			strconv.FormatFloat(track.BPM, 'f', -1, 64),
			strconv.Itoa(track.TimeSignature),
			strconv.FormatBool(track.IsPlayable),
			strconv.FormatBool(track.IsLocal),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to a Markdown document with a track table.
func ExportToMarkdown(entry *models.PlaylistEntry) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", entry.Name)
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(entry.Tracks))
	fmt.Fprintf(&buf, "**Snapshot**: `%s`\n\n", entry.SnapshotID)
	if !entry.FullyLoaded {
		buf.WriteString("> Track list is incomplete.\n\n")
	}

	buf.WriteString("| # | Track | Artist | Album | BPM | Meter |\n")
	buf.WriteString("|---|-------|--------|-------|-----|-------|\n")
	for i, track := range entry.Tracks {
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			i+1, escapeCell(track.Name), escapeCell(track.Artist), escapeCell(track.Album),
			FormatBPM(track.BPM), FormatMeter(track.TimeSignature))
	}

	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ExportToText converts a playlist to plain text format
func ExportToText(entry *models.PlaylistEntry) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", entry.Name)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(entry.Tracks))

	for i, track := range entry.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s [%s bpm]\n", i+1, track.Artist, track.Name, FormatBPM(track.BPM))
	}

	return buf.Bytes(), nil
}

// Export renders entry in the given format.
func Export(entry *models.PlaylistEntry, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return ExportToCSV(entry)
	case Markdown:
		return ExportToMarkdown(entry)
	case Text:
		return ExportToText(entry)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport writes entry to path in the given format.
//
// Defaults to {entry.ID}_tracks.{format} as the filename.
func WriteExport(entry *models.PlaylistEntry, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.%s", entry.ID, format)
	}

	data, err := Export(entry, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}
