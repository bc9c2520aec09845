package scenario

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformedFrame wraps frame lines that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// maxLineBytes bounds a single frame line.
const maxLineBytes = 1 << 20

// Source yields frames until io.EOF.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Reader decodes one JSON frame per line. Blank lines and lines starting
// with '#' are skipped.
type Reader struct {
	scanner *bufio.Scanner
	line    int

	// SkipMalformed logs undecodable lines on the ops stream and moves on
	// instead of returning ErrMalformedFrame.
	SkipMalformed bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: s}
}

// Next implements Source. It returns io.EOF after the last frame.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("failed to read frame: %w", err)
			}
			return Frame{}, io.EOF
		}
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var f Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			if r.SkipMalformed {
				opsf("skipping line %d: %v", r.line, err)
				continue
			}
			return Frame{}, fmt.Errorf("%w: line %d: %v", ErrMalformedFrame, r.line, err)
		}
		return f, nil
	}
}

// ReadAll drains src.
func ReadAll(ctx context.Context, src Source) ([]Frame, error) {
	var frames []Frame
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// FileSource reads frames from a JSON-lines file.
type FileSource struct {
	*Reader
	f *os.File
}

// OpenFile opens a JSON-lines frame file.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame file: %w", err)
	}
	diagf("reading frames from %s", path)
	return &FileSource{Reader: NewReader(f), f: f}, nil
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// WriteFrames encodes frames as JSON lines.
func WriteFrames(w io.Writer, frames []Frame) error {
	enc := json.NewEncoder(w)
	for i, f := range frames {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	return nil
}
