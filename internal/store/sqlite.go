package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writes
	log zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:  db,
		log: logging.Component("store"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.log.Debug().Str("db_path", dbPath).Msg("segment store initialized")
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			audio_path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			transcription TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			retries INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id, seq);
		CREATE INDEX IF NOT EXISTS idx_segments_status ON segments(status);
		CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at) VALUES (?, ?)`,
		session.ID, session.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM sessions WHERE id = ?`, id).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &Session{ID: id, CreatedAt: time.Unix(0, created)}, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete segments of session %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	query := `
		SELECT s.id, s.created_at,
			COUNT(g.id),
			COALESCE(SUM(CASE WHEN g.status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM sessions s
		LEFT JOIN segments g ON g.session_id = s.id
		GROUP BY s.id, s.created_at
		ORDER BY s.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var created int64
		if err := rows.Scan(&sum.ID, &created, &sum.SegmentCount, &sum.CompletedCount); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created)
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) InsertSegment(ctx context.Context, segment *Segment) error {
	if err := segment.Validate(); err != nil {
		return err
	}
	now := time.Now()
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = now
	}
	if segment.UpdatedAt.IsZero() {
		segment.UpdatedAt = segment.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, segment.SessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check session %s: %w", segment.SessionID, err)
	}
	if exists == 0 {
		return fmt.Errorf("session %s: %w", segment.SessionID, ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO segments (id, session_id, seq, audio_path, size, transcription, status, retries, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		segment.ID,
		segment.SessionID,
		segment.Seq,
		segment.AudioPath,
		segment.Size,
		segment.Transcription,
		string(segment.Status),
		segment.Retries,
		string(segment.Source),
		segment.CreatedAt.UnixNano(),
		segment.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert segment %s: %w", segment.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSegment(ctx context.Context, segment *Segment) error {
	if err := segment.Validate(); err != nil {
		return err
	}
	if segment.UpdatedAt.IsZero() {
		segment.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE segments
		SET transcription = ?, status = ?, retries = MAX(retries, ?), source = ?, updated_at = ?
		WHERE id = ?`,
		segment.Transcription,
		string(segment.Status),
		segment.Retries,
		string(segment.Source),
		segment.UpdatedAt.UnixNano(),
		segment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update segment %s: %w", segment.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const segmentColumns = `id, session_id, seq, audio_path, size, transcription, status, retries, source, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSegment(row rowScanner) (Segment, error) {
	var seg Segment
	var status, source string
	var created, updated int64
	err := row.Scan(
		&seg.ID,
		&seg.SessionID,
		&seg.Seq,
		&seg.AudioPath,
		&seg.Size,
		&seg.Transcription,
		&status,
		&seg.Retries,
		&source,
		&created,
		&updated,
	)
	if err != nil {
		return Segment{}, err
	}
	seg.Status = Status(status)
	seg.Source = Source(source)
	seg.CreatedAt = time.Unix(0, created)
	seg.UpdatedAt = time.Unix(0, updated)
	return seg, nil
}

func (s *SQLiteStore) GetSegment(ctx context.Context, id string) (*Segment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment %s: %w", id, err)
	}
	return &seg, nil
}

func (s *SQLiteStore) SessionSegments(ctx context.Context, sessionID string) ([]Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
}

func (s *SQLiteStore) PendingSegments(ctx context.Context) ([]Segment, error) {
	return s.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE status = ? ORDER BY created_at ASC, seq ASC`,
		string(StatusPending),
	)
}

func (s *SQLiteStore) querySegments(ctx context.Context, query string, args ...any) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segment rows: %w", err)
	}
	return segments, nil
}
