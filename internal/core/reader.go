package core

// reader.go turns uploaded files into rows of cells.
//
// CSV input passes through two streaming transforms before encoding/csv
// sees it:
//
//   - bomSkippingReader: drops the UTF-8 BOM Excel adds on Windows
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?'
//
// XLSX input is read with excelize; only the first sheet is imported.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// DefaultMaxFileSize is the upload limit used when none is configured.
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

// File formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DetectFormat reports whether data is a CSV or XLSX file. The file name
// extension breaks ties when the content alone is ambiguous.
func DetectFormat(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mime := mimetype.Detect(data)

	switch {
	case mime.Is(xlsxMIME):
		return FormatXLSX, nil
	case mime.Is("application/zip") && ext == ".xlsx":
		return FormatXLSX, nil
	}
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("text/csv") {
			return FormatCSV, nil
		}
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFile, name, mime.String())
}

// ReadRows reads every row of a CSV or XLSX file. Files larger than
// maxSize bytes are rejected; maxSize <= 0 uses DefaultMaxFileSize.
func ReadRows(name string, r io.Reader, maxSize int64) ([][]string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, maxSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return readXLSX(data)
	}
	return readCSV(bytes.NewReader(data))
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(newUTF8Sanitizer(newBOMSkippingReader(r)))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// WriteCSV writes rows as CSV.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes rows to a single sheet workbook.
func WriteXLSX(w io.Writer, sheet string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// bomSkippingReader drops a leading UTF-8 BOM (0xEF 0xBB 0xBF).
type bomSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if !(n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF) {
			r.pending = append(r.pending, buf[:n]...)
		}
	}
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}
	return r.reader.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' while streaming.
// An incomplete multi-byte sequence at the end of a chunk is carried over
// until the next chunk completes it.
type utf8Sanitizer struct {
	reader io.Reader
	chunk  []byte
	carry  []byte
	out    []byte
	err    error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{reader: r, chunk: make([]byte, 32*1024)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
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
	n, err := s.reader.Read(s.chunk)
	data := append(s.carry, s.chunk[:n]...)
	s.carry = nil
	s.err = err
	atEOF := err != nil

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		c := data[i]
		if c < utf8.RuneSelf {
			out = append(out, c)
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(data[i:]) {
			s.carry = append([]byte(nil), data[i:]...)
			break
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
			i++
			continue
		}
		out = append(out, data[i:i+size]...)
		i += size
	}
	s.out = out
}
