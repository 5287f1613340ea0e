package store

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Source records which transcriber produced the text of a completed segment.
type Source string

const (
	SourceNone     Source = ""
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Session is one capture run. It owns its segments.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary is a session row as listed to observers.
type SessionSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	SegmentCount   int       `json:"segment_count"`
	CompletedCount int       `json:"completed_count"`
}

// Segment is one fixed-duration slice of captured audio and its transcription state.
type Segment struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Seq           int       `json:"seq"`
	AudioPath     string    `json:"audio_path"`
	Size          int       `json:"size"`
	Transcription string    `json:"transcription,omitempty"`
	Status        Status    `json:"status"`
	Retries       int       `json:"retries"`
	Source        Source    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Complete marks the segment completed with the given text.
func (s *Segment) Complete(text string, source Source) {
	s.Transcription = text
	s.Status = StatusCompleted
	s.Source = source
	s.UpdatedAt = time.Now()
}

// Fail marks the segment failed. Any partial text is dropped.
func (s *Segment) Fail() {
	s.Transcription = ""
	s.Status = StatusFailed
	s.UpdatedAt = time.Now()
}

func (s *Segment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("segment: empty id")
	}
	if s.SessionID == "" {
		return fmt.Errorf("segment %s: empty session id", s.ID)
	}
	if s.Retries < 0 {
		return fmt.Errorf("segment %s: negative retries %d", s.ID, s.Retries)
	}
	switch s.Status {
	case StatusPending, StatusFailed:
	case StatusCompleted:
		if strings.TrimSpace(s.Transcription) == "" {
			return fmt.Errorf("segment %s: completed without transcription", s.ID)
		}
	default:
		return fmt.Errorf("segment %s: invalid status %q", s.ID, s.Status)
	}
	return nil
}
