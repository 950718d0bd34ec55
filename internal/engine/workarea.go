package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkAreas maps a document id to its working directory. Every path derivation for a
// document goes through here.
type WorkAreas struct {
	root string
}

func NewWorkAreas(root string) *WorkAreas {
	return &WorkAreas{root: root}
}

func (w *WorkAreas) Root() string {
	return w.root
}

func (w *WorkAreas) Path(docID string) (string, error) {
	if docID == "" || docID == "." || docID == ".." || strings.ContainsAny(docID, `/\`) {
		return "", fmt.Errorf("invalid document id %q", docID)
	}
	return filepath.Join(w.root, docID), nil
}

// Prepare recreates an empty working area for docID, discarding earlier contents.
func (w *WorkAreas) Prepare(docID string) (string, error) {
	path, err := w.Path(docID)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("reset work area: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create work area: %w", err)
	}
	return path, nil
}
