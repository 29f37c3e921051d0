package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// JSONFile writes documents as indented JSON. With a fixed filename every
// write replaces the file; in directory mode each user gets <dir>/<user>.json.
type JSONFile struct {
	filename string
	dir      string
}

func NewJSONFile(filename string) *JSONFile {
	return &JSONFile{filename: filename}
}

func NewJSONDir(dir string) *JSONFile {
	return &JSONFile{dir: dir}
}

func (f *JSONFile) Name() string { return "jsonfile" }

// Path returns the file a document for userID is written to.
func (f *JSONFile) Path(userID string) string {
	if f.dir == "" {
		return f.filename
	}
	return filepath.Join(f.dir, unsafeFileChars.ReplaceAllString(userID, "_")+".json")
}

func (f *JSONFile) Write(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	path := f.Path(doc.UserID)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	// Write then rename so readers never see a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
