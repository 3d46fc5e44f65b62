package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/internal/storage/models"
	"github.com/rescue-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		species TEXT,
		doc_type TEXT,
		summary TEXT,
		raw_content TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_species ON documents(species);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		title TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);

	CREATE TABLE IF NOT EXISTS request_history (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		user_id TEXT,
		query_text TEXT NOT NULL,
		response TEXT,
		mode TEXT,
		sufficiency_level TEXT,
		kb_docs INTEGER,
		web_facts INTEGER,
		map_hits INTEGER,
		attempts INTEGER,
		latency_ms INTEGER,
		trace TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_session ON request_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_requests_user ON request_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON request_history(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		issue_category TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES request_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// RecordRequest persists a completed request with its decision trace.
func (c *Client) RecordRequest(ctx context.Context, rec engine.RequestRecord) error {
	traceJSON, err := json.Marshal(rec.Trace)
	if err != nil {
		return fmt.Errorf("failed to serialize trace: %w", err)
	}

	query := `
		INSERT INTO request_history (id, session_id, user_id, query_text, response, mode,
			sufficiency_level, kb_docs, web_facts, map_hits, attempts, latency_ms, trace, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.SessionID,
		rec.UserID,
		rec.Query,
		rec.Response,
		rec.Mode,
		rec.Level,
		rec.KBDocs,
		rec.WebFacts,
		rec.MapHits,
		rec.Attempts,
		rec.LatencyMS,
		string(traceJSON),
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}

	logger.Info("Request recorded",
		zap.String("request_id", rec.ID),
		zap.String("mode", rec.Mode),
		zap.String("level", rec.Level),
	)

	return nil
}

// GetRequestTrace returns the stored decision trace for one request.
func (c *Client) GetRequestTrace(ctx context.Context, requestID string) ([]engine.TraceEntry, error) {
	var traceJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT trace FROM request_history WHERE id = ?`, requestID,
	).Scan(&traceJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to get request trace: %w", err)
	}

	var trace []engine.TraceEntry
	if err := json.Unmarshal([]byte(traceJSON), &trace); err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}

	return trace, nil
}

func (c *Client) CreateSession(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.Title,
		session.CreatedAt.Unix(),
		session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, user_id, title, created_at, updated_at FROM sessions WHERE id = ?`

	var s models.Session
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.UserID, &s.Title, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)

	return &s, nil
}

func (c *Client) ListSessions(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM sessions
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var createdAt, updatedAt int64

		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.CreatedAt = time.Unix(createdAt, 0)
		s.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func (c *Client) AppendMessage(ctx context.Context, msg *models.Message) error {
	query := `INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(
		ctx,
		query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt.Unix(), msg.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// GetSessionHistory returns up to limit most recent messages, oldest first.
func (c *Client) GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM (
			SELECT id, session_id, role, content, created_at
			FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, url, title, species, doc_type, summary, raw_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			raw_content = excluded.raw_content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.URL,
		doc.Title,
		doc.Species,
		doc.DocType,
		doc.Summary,
		doc.RawContent,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("url", doc.URL))
	return nil
}

func (c *Client) InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	query := `INSERT INTO document_chunks (id, doc_id, chunk_index, text, embedding_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(
		ctx,
		query,
		chunk.ID,
		chunk.DocID,
		chunk.ChunkIndex,
		chunk.Text,
		chunk.EmbeddingID,
		chunk.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	query := `INSERT INTO feedback (query_id, helpful, issue_category, comment, created_at) VALUES (?, ?, ?, ?, ?)`

	helpful := 0
	if feedback.Helpful {
		helpful = 1
	}

	_, err := c.db.ExecContext(
		ctx,
		query,
		feedback.QueryID,
		helpful,
		feedback.IssueCategory,
		feedback.Comment,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("query_id", feedback.QueryID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}
