package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/david/market-ledger/internal/models"
)

// Marshal renders a document with two-space indentation.
func Marshal(doc models.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile validates doc and writes it to path, replacing any previous
// document in one rename so readers never see a partial file.
func WriteFile(path string, doc models.Document) error {
	if err := Validate(doc); err != nil {
		return err
	}
	data, err := Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a previously written document.
func ReadFile(path string) (models.Document, error) {
	var doc models.Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read document: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode document %s: %w", path, err)
	}
	return doc, nil
}

// FileSink publishes documents to a JSON file.
type FileSink struct {
	Path string
}

func (s FileSink) Publish(_ context.Context, doc models.Document) error {
	return WriteFile(s.Path, doc)
}
