package corpus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FileSource reads a corpus from the local filesystem. PDF files are
// converted to plain text; everything else is read verbatim.
type FileSource struct {
	logger *slog.Logger
}

// NewFileSource creates a FileSource.
func NewFileSource(logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{logger: logger}
}

// Fetch implements Source.
func (s *FileSource) Fetch(_ context.Context, req Request) (Corpus, error) {
	if req.Path == "" {
		return Corpus{}, fmt.Errorf("%w: no path given", ErrUnavailable)
	}

	var (
		text string
		err  error
	)
	ext := strings.ToLower(filepath.Ext(req.Path))
	if ext == ".pdf" {
		text, err = readPDF(req.Path)
	} else {
		var data []byte
		data, err = os.ReadFile(req.Path)
		text = string(data)
	}
	if err != nil {
		s.logger.Error("loading corpus file", "path", req.Path, "error", err)
		return Corpus{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, req.Path, err)
	}

	s.logger.Info("loaded corpus file", "path", req.Path, "bytes", len(text))
	return Corpus{
		ID:   filepath.Base(req.Path),
		Text: text,
		Metadata: map[string]string{
			"source": "file",
			"path":   req.Path,
		},
	}, nil
}

func readPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("read pdf buffer: %w", err)
	}
	return buf.String(), nil
}
