package landmarks

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadFile reads a map file with one landmark per line: "x y id",
// whitespace separated. Blank lines and lines starting with '#' are skipped.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open map file: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("map file %s: %w", path, err)
	}
	return m, nil
}

// Parse reads landmarks in the LoadFile format from r.
func Parse(r io.Reader) (*Map, error) {
	var list []Landmark

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields (x y id), got %d", lineNo, len(fields))
		}

		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse x: %v", lineNo, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse y: %v", lineNo, err)
		}
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse id: %v", lineNo, err)
		}

		list = append(list, Landmark{ID: id, X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read map: %w", err)
	}

	return NewMap(list)
}
