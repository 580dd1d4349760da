package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Message roles persisted in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one chat session row. Index state lives in memory; the row
// is the durable record of the conversation.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Message is one chat turn. Assistant messages carry the source
// documents that grounded the answer and the generation tier.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Sources   []string
	Tier      string
	CreatedAt time.Time
}

// UploadedFile records one document upload and how many chunks it
// contributed to the session's index.
type UploadedFile struct {
	ID         string
	SessionID  string
	Filename   string
	SizeBytes  int64
	ChunkCount int
	CreatedAt  time.Time
}

// Store persists sessions, messages and upload records in Postgres.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Session operations

func (s *Store) CreateSession(ctx context.Context, title string) (Session, error) {
	sess := Session{ID: uuid.NewString(), Title: title}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO chat_sessions (id, title) VALUES ($1,$2) RETURNING created_at`,
		sess.ID, sess.Title).Scan(&sess.CreatedAt)
	return sess, err
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, bool, error) {
	var sess Session
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM chat_sessions WHERE id=$1`, id).
		Scan(&sess.ID, &sess.Title, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, created_at FROM chat_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes the session row; messages and upload records go
// with it via ON DELETE CASCADE. Deleting an unknown session reports
// false with no error.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Message operations

func (s *Store) AddMessage(ctx context.Context, m Message) (Message, error) {
	m.ID = uuid.NewString()
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, sources, tier) VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		m.ID, m.SessionID, m.Role, m.Content, pq.Array(m.Sources), m.Tier).Scan(&m.CreatedAt)
	return m, err
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, session_id, role, content, sources, tier, created_at FROM messages WHERE session_id=$1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, pq.Array(&m.Sources), &m.Tier, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upload operations

func (s *Store) AddFile(ctx context.Context, f UploadedFile) (UploadedFile, error) {
	f.ID = uuid.NewString()
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO uploaded_files (id, session_id, filename, size_bytes, chunk_count) VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
		f.ID, f.SessionID, f.Filename, f.SizeBytes, f.ChunkCount).Scan(&f.CreatedAt)
	return f, err
}

func (s *Store) ListFiles(ctx context.Context, sessionID string) ([]UploadedFile, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, session_id, filename, size_bytes, chunk_count, created_at FROM uploaded_files WHERE session_id=$1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UploadedFile
	for rows.Next() {
		var f UploadedFile
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Filename, &f.SizeBytes, &f.ChunkCount, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
