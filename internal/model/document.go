package model

import (
	"fmt"
	"strings"
)

type DocumentState string

const (
	DocumentStateUnprocessed DocumentState = "unprocessed"
	DocumentStateProcessing  DocumentState = "processing"
	DocumentStateReady       DocumentState = "ready"
	DocumentStateFailed      DocumentState = "failed"
)

func (s DocumentState) Valid() bool {
	switch s {
	case DocumentStateUnprocessed, DocumentStateProcessing, DocumentStateReady, DocumentStateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s DocumentState) Terminal() bool {
	return s == DocumentStateReady || s == DocumentStateFailed
}

// CanTransition allows forward moves only: unprocessed -> processing -> ready|failed.
// unprocessed may also fail directly when the job never starts.
func (s DocumentState) CanTransition(to DocumentState) bool {
	switch s {
	case DocumentStateUnprocessed:
		return to == DocumentStateProcessing || to == DocumentStateFailed
	case DocumentStateProcessing:
		return to == DocumentStateReady || to == DocumentStateFailed
	}
	return false
}

type Document struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Filename  string        `json:"filename" db:"filename"`
	Filepath  string        `json:"filepath" db:"filepath"`
	Size      int64         `json:"size" db:"size"`
	MimeType  string        `json:"mime_type" db:"mime_type"`
	PageCount int           `json:"page_count" db:"page_count"`
	State     DocumentState `json:"state" db:"state"`
	Error     string        `json:"error,omitempty" db:"error_detail"`
	Ctime     int64         `json:"ctime" db:"ctime"`
	Mtime     int64         `json:"mtime" db:"mtime"`
}

// Ready reports whether questions may be asked against the document.
func (d *Document) Ready() bool {
	return d != nil && d.State == DocumentStateReady
}

type NewDocumentInput struct {
	Name      string
	Filename  string
	Filepath  string
	Size      int64
	MimeType  string
	PageCount int
}

// NewDocument builds an unprocessed document, rejecting incomplete input.
func NewDocument(id string, input NewDocumentInput, now int64) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("document name is required")
	}
	if strings.TrimSpace(input.Filepath) == "" {
		return nil, fmt.Errorf("document file path is required")
	}
	if input.Size < 0 {
		return nil, fmt.Errorf("document size must not be negative")
	}
	if strings.TrimSpace(input.MimeType) == "" {
		return nil, fmt.Errorf("document mime type is required")
	}
	filename := input.Filename
	if filename == "" {
		filename = input.Name
	}
	return &Document{
		ID:        id,
		Name:      input.Name,
		Filename:  filename,
		Filepath:  input.Filepath,
		Size:      input.Size,
		MimeType:  input.MimeType,
		PageCount: input.PageCount,
		State:     DocumentStateUnprocessed,
		Ctime:     now,
		Mtime:     now,
	}, nil
}
