package table

// streaming.go provides the reader chain used when importing CSV tables.
//
// Uploaded sheets are frequently exported from desktop spreadsheet tools and
// carry a UTF-8 byte order mark or stray invalid bytes. The readers below fix
// both on the fly with constant memory:
//
//   - bomReader drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - CountingReader tracks bytes consumed for import summaries

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitizeChunk is the read size used by utf8Sanitizer.
const sanitizeChunk = 32 * 1024

type bomReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{br: bufio.NewReader(r)}
}

func (r *bomReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		if head, _ := r.br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer rewrites invalid UTF-8 as '?'. Multi-byte sequences split
// across reads are held back until the next chunk arrives.
type utf8Sanitizer struct {
	r       io.Reader
	buf     []byte
	pending []byte
	out     []byte
	err     error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, buf: make([]byte, sanitizeChunk)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *utf8Sanitizer) fill() {
	n, err := s.r.Read(s.buf)
	data := append(s.pending, s.buf[:n]...)
	s.pending = nil
	atEOF := err != nil

	if !atEOF {
		if hold := incompleteTail(data); hold > 0 {
			s.pending = append([]byte(nil), data[len(data)-hold:]...)
			data = data[:len(data)-hold]
		}
	}

	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			out = append(out, '?')
			data = data[1:]
			continue
		}
		out = append(out, data[:size]...)
		data = data[size:]
	}
	s.out = out
	s.err = err
}

// incompleteTail returns how many trailing bytes of data start a multi-byte
// sequence that is not complete yet.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if utf8.FullRune(data[len(data)-i:]) {
			return 0
		}
		return i
	}
	return 0
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// WrapForImport applies BOM stripping and UTF-8 sanitization, and counts the
// raw bytes consumed from r.
func WrapForImport(r io.Reader) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r)
	return newUTF8Sanitizer(newBOMReader(counter)), counter
}
