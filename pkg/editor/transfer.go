package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrNothingToExport is returned when the buffer is empty or whitespace only.
	ErrNothingToExport = errors.New("no content to export")
	// ErrReadFailed wraps every failure to read an imported file.
	ErrReadFailed = errors.New("failed to read file")
	// ErrExportFailed and ErrImportFailed wrap faults while building the
	// download or applying an imported file.
	ErrExportFailed = errors.New("export failed")
	ErrImportFailed = errors.New("import failed")
)

// ExportContentType is the media type of exported files.
const ExportContentType = "text/plain; charset=utf-8"

// Export is a downloadable copy of the buffer.
type Export struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ExportFilename names the export file for the given day (UTC).
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("poker-hand-history-%s.txt", t.UTC().Format("2006-01-02"))
}

// Export produces the buffer as a dated text file.
func (s *Session) Export() (Export, error) {
	content := s.buf.Content()
	if strings.TrimSpace(content) == "" {
		return Export{}, ErrNothingToExport
	}
	return Export{
		Filename: ExportFilename(s.now()),
		Content:  content,
	}, nil
}

// Import replaces the whole buffer with content read from a file.
func (s *Session) Import(ctx context.Context, content string) State {
	s.buf.ReplaceAll(content)
	s.changed(ctx)
	return s.State()
}

// ReadImport reads an uploaded file as text. It runs outside the session so a
// slow or failing read never touches the buffer.
//
// The bytes are decoded as UTF-8 unless a byte order mark says otherwise;
// the mark is dropped and invalid sequences become U+FFFD.
func ReadImport(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrReadFailed, limit)
	}

	text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return string(text), nil
}
