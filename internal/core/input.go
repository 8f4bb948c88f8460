package core

// input.go prepares raw upload bytes for the parser.
//
// Spreadsheet exports from Windows tools often start with a UTF-8 BOM and
// occasionally carry stray Latin-1 bytes. Both are handled by decoding the
// input through x/text: the BOM is dropped and invalid sequences become
// U+FFFD instead of failing the whole file.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format is the tabular format of an upload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat chooses the format from the file extension. Anything that
// is not a workbook is read as CSV.
func DetectFormat(fileName string) Format {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// decodeUTF8 strips a leading BOM and replaces invalid UTF-8.
func decodeUTF8(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// errTooLarge is returned by sizeLimitedReader once the limit is passed.
var errTooLarge = errors.New("file exceeds maximum size")

// sizeLimitedReader fails instead of truncating when more than limit
// bytes are read.
type sizeLimitedReader struct {
	r         io.Reader
	remaining int64
}

func limitSize(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return &sizeLimitedReader{r: r, remaining: limit}
}

func (l *sizeLimitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

// record is one source row with its 1-based physical line.
type record struct {
	cells []string
	line  int
}

// readRecords loads every record of the source. The working set is bounded
// by the size limit applied to r.
func readRecords(r io.Reader, format Format, sheet string) ([]record, error) {
	switch format {
	case FormatXLSX:
		return readWorkbook(r, sheet)
	default:
		return readCSV(r)
	}
}

func readCSV(r io.Reader) ([]record, error) {
	cr := csv.NewReader(decodeUTF8(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	var out []record
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		out = append(out, record{cells: cells, line: line})
	}
}

func readWorkbook(r io.Reader, sheet string) ([]record, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	out := make([]record, len(rows))
	for i, cells := range rows {
		out[i] = record{cells: cells, line: i + 1}
	}
	return out, nil
}

func isEmptyRecord(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
