package tui

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/leonardotrapani/livescribe/internal/models/whisper"
	"github.com/leonardotrapani/livescribe/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleLabel.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// RenderSessions formats sessions newest first, as returned by the store.
func RenderSessions(sessions []store.SessionSummary) string {
	if len(sessions) == 0 {
		return StyleMuted.Render("No sessions recorded yet.")
	}

	now := time.Now()
	t := newTable("SESSION", "CREATED", "AGE", "SEGMENTS", "DONE")
	for _, s := range sessions {
		t.Row(
			s.ID,
			s.CreatedAt.Local().Format(timeLayout),
			FormatAge(s.CreatedAt, now),
			strconv.Itoa(s.SegmentCount),
			fmt.Sprintf("%d/%d", s.CompletedCount, s.SegmentCount),
		)
	}
	return t.Render()
}

// RenderSegments formats one session's segments in capture order.
func RenderSegments(session store.Session, segments []store.Segment) string {
	var b strings.Builder
	b.WriteString(StyleHeader.Render("Session " + session.ID))
	b.WriteString("\n")
	b.WriteString(StyleMuted.Render("created " + session.CreatedAt.Local().Format(timeLayout)))
	b.WriteString("\n\n")

	if len(segments) == 0 {
		b.WriteString(StyleMuted.Render("No segments."))
		return b.String()
	}

	t := newTable("#", "STATUS", "RETRIES", "SOURCE", "AUDIO", "TRANSCRIPTION")
	for _, seg := range segments {
		t.Row(
			strconv.Itoa(seg.Seq),
			StatusStyle(seg.Status).Render(string(seg.Status)),
			strconv.Itoa(seg.Retries),
			sourceLabel(seg.Source),
			filepath.Base(seg.AudioPath),
			segmentText(seg),
		)
	}
	b.WriteString(t.Render())
	return b.String()
}

// RenderModels lists the whisper catalog, marking downloaded models.
func RenderModels(models []whisper.ModelInfo, installed func(id string) bool) string {
	t := newTable("MODEL", "NAME", "SIZE", "LANGUAGES", "INSTALLED")
	for _, m := range models {
		langs := "english"
		if m.Multilingual {
			langs = "multilingual"
		}
		mark := StyleMuted.Render("-")
		if installed(m.ID) {
			mark = StyleSuccess.Render("yes")
		}
		t.Row(m.ID, m.Name, m.Size(), langs, mark)
	}
	return t.Render()
}

// Transcript joins the completed text of segments in capture order.
func Transcript(segments []store.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Status == store.StatusCompleted {
			parts = append(parts, strings.TrimSpace(seg.Transcription))
		}
	}
	return strings.Join(parts, " ")
}

func sourceLabel(src store.Source) string {
	if src == store.SourceNone {
		return "-"
	}
	return string(src)
}

func segmentText(seg store.Segment) string {
	switch seg.Status {
	case store.StatusPending:
		return StyleMuted.Render("(pending)")
	case store.StatusFailed:
		return StyleError.Render("(failed)")
	}
	text := seg.Transcription
	if r := []rune(text); len(r) > 60 {
		text = string(r[:60]) + "…"
	}
	return text
}

// FormatAge renders how long ago t was, coarsely.
func FormatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
