// Package models defines core data structures shared by sources, the pipeline and the store catalog.
package models

import "time"

// Well-known metadata keys.
const (
	MetaFilePath  = "file_path"
	MetaSessionID = "session_id"
	MetaText      = "text"
	MetaID        = "id"
)

// Document is one unit of text with its metadata. Sources and parsers create
// documents; the pipeline stamps the session id once and treats them as read-only afterwards.
type Document struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// NewDocument returns a document holding a copy of metadata. A nil map becomes empty.
func NewDocument(text string, metadata map[string]any) Document {
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Document{Text: text, Metadata: md}
}

// Set writes key into the document metadata, allocating the map if needed.
func (d *Document) Set(key string, value any) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
}

// Texts projects docs to their text, preserving order.
func Texts(docs []Document) []string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return texts
}

// StoreInfo describes a built vector store as recorded in the catalog.
type StoreInfo struct {
	Name          string    `json:"name"`
	RequestedName string    `json:"requested_name"`
	Path          string    `json:"path"`
	Documents     int       `json:"documents"`
	Dimensions    int       `json:"dimensions"`
	IndexType     string    `json:"index_type"`
	SessionID     string    `json:"session_id,omitempty"`
	RunID         string    `json:"run_id"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}
