// Package models holds the persisted record shapes shared by the storage
// layer and its callers.
package models

import "time"

// Document is an ingested knowledge-base source document.
type Document struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Species    string    `json:"species"`
	DocType    string    `json:"doc_type"`
	Summary    string    `json:"summary"`
	RawContent string    `json:"raw_content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentChunk is one embedded fragment of a document. EmbeddingID points
// at the vector store entry.
type DocumentChunk struct {
	ID          string    `json:"id"`
	DocID       string    `json:"doc_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	EmbeddingID string    `json:"embedding_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session groups the turns of one conversation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one conversation turn inside a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Feedback is a user's verdict on one answered request.
type Feedback struct {
	QueryID       string `json:"query_id"`
	Helpful       bool   `json:"helpful"`
	IssueCategory string `json:"issue_category,omitempty"`
	Comment       string `json:"comment,omitempty"`
}
