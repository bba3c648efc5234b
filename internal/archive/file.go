package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FileArchiver writes reports under a local directory.
type FileArchiver struct {
	dir string
}

// NewFile returns a FileArchiver rooted at dir (default "reports").
func NewFile(dir string) *FileArchiver {
	if dir == "" {
		dir = "reports"
	}
	return &FileArchiver{dir: dir}
}

// Save writes content to <dir>/report_<domain>.txt, replacing any earlier report.
func (a *FileArchiver) Save(_ context.Context, pageURL, content string) (string, error) {
	name, err := ReportName(pageURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "archive: create dir %s", a.dir)
	}
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", eris.Wrapf(err, "archive: write %s", path)
	}
	return path, nil
}

func (a *FileArchiver) Load(_ context.Context, pageURL string) (string, error) {
	name, err := ReportName(pageURL)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotArchived
	}
	if err != nil {
		return "", eris.Wrapf(err, "archive: read %s", name)
	}
	return string(data), nil
}
