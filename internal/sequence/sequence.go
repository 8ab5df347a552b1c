// Package sequence reads DPU instruction sequences: text files holding one
// 32-bit word per line as 8 hexadecimal characters, with '#' comment lines.
package sequence

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// WordLen is the exact length of a data line.
const WordLen = 8

// FormatError reports a malformed or unreadable instruction source.
type FormatError struct {
	Path   string
	Line   int
	Text   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	src := e.Path
	if src == "" {
		src = "<sequence>"
	}
	msg := src
	if e.Line > 0 {
		msg = fmt.Sprintf("%s:%d", src, e.Line)
	}
	msg += ": " + e.Reason
	if e.Text != "" {
		msg += fmt.Sprintf(" (%q)", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// WordWriter receives decoded words at consecutive indices starting at 0.
type WordWriter interface {
	WriteWord(index int, word uint32) error
}

// Words is a growable WordWriter.
type Words []uint32

func (w *Words) WriteWord(index int, word uint32) error {
	if index != len(*w) {
		return fmt.Errorf("non-sequential write at word %d (have %d)", index, len(*w))
	}
	*w = append(*w, word)
	return nil
}

func isComment(line string) bool {
	return len(line) > 0 && line[0] == '#'
}

// Decode parses one data line. It accepts exactly 8 hex digits in either case.
func Decode(line string) (uint32, error) {
	if len(line) != WordLen {
		return 0, fmt.Errorf("invalid instruction length %d (want %d)", len(line), WordLen)
	}
	// ParseUint with an explicit base rejects signs, prefixes and underscores.
	v, err := strconv.ParseUint(line, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex word")
	}
	return uint32(v), nil
}

// scan walks the data lines of r, calling fn with each decoded word.
func scan(path string, r io.Reader, fn func(n int, word uint32) error) (int, error) {
	sc := bufio.NewScanner(r)
	lineNo, n := 0, 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if isComment(line) {
			continue
		}
		word, err := Decode(line)
		if err != nil {
			return n, &FormatError{Path: path, Line: lineNo, Text: line, Reason: err.Error()}
		}
		if fn != nil {
			if err := fn(n, word); err != nil {
				return n, &FormatError{Path: path, Line: lineNo, Reason: "cannot store instruction word", Err: err}
			}
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, &FormatError{Path: path, Line: lineNo, Reason: "read failed", Err: err}
	}
	return n, nil
}

// Count returns the number of data lines in r. A source without any data
// line, or with a data line that is not exactly 8 hex characters, fails.
func Count(r io.Reader) (int, error) {
	return count("", r)
}

func count(path string, r io.Reader) (int, error) {
	n, err := scan(path, r, nil)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, &FormatError{Path: path, Reason: "invalid instruction length: no data lines"}
	}
	return n, nil
}

// Load decodes r in a single pass into consecutive words of dst and returns
// the number of words written.
func Load(r io.Reader, dst WordWriter) (int, error) {
	return scan("", r, dst.WriteWord)
}

// Parse decodes r into a new slice.
func Parse(r io.Reader) ([]uint32, error) {
	var w Words
	if _, err := Load(r, &w); err != nil {
		return nil, err
	}
	if len(w) == 0 {
		return nil, &FormatError{Reason: "invalid instruction length: no data lines"}
	}
	return w, nil
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "failure opening file for reading", Err: err}
	}
	return f, nil
}

func CountFile(path string) (int, error) {
	f, err := open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return count(path, f)
}

func LoadFile(path string, dst WordWriter) (int, error) {
	f, err := open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return scan(path, f, dst.WriteWord)
}

// ParseFile decodes the file at path into a new slice.
func ParseFile(path string) ([]uint32, error) {
	var w Words
	if _, err := LoadFile(path, &w); err != nil {
		return nil, err
	}
	if len(w) == 0 {
		return nil, &FormatError{Path: path, Reason: "invalid instruction length: no data lines"}
	}
	return w, nil
}

// Write renders words in the textual encoding, one upper-case word per line.
func Write(w io.Writer, words []uint32, comments ...string) error {
	bw := bufio.NewWriter(w)
	for _, c := range comments {
		if _, err := fmt.Fprintf(bw, "# %s\n", c); err != nil {
			return err
		}
	}
	for _, word := range words {
		if _, err := fmt.Fprintf(bw, "%08X\n", word); err != nil {
			return err
		}
	}
	return bw.Flush()
}
