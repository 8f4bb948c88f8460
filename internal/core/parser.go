package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseOptions bounds the in-memory working set of one batch.
type ParseOptions struct {
	MaxRows     int
	MaxFileSize int64
}

// Source is the raw tabular input of an import.
type Source struct {
	FileName string
	Reader   io.Reader
}

// Parser turns raw tabular input into ParsedRows.
type Parser struct {
	registry *Registry
	opts     ParseOptions
}

// NewParser creates a parser that resolves kinds from reg.
func NewParser(reg *Registry, opts ParseOptions) *Parser {
	return &Parser{registry: reg, opts: opts}
}

// boundRule is a ColumnRule resolved against the header and kind.
type boundRule struct {
	ColumnRule
	column    int // -1 when the source column is absent
	spec      FieldSpec
	transform TransformFunc
}

// Parse reads src using mapping. Row-level problems are recorded on the
// returned rows; an error is returned only when the input as a whole is
// unusable (bad mapping, no header, unreadable file, limits exceeded).
func (p *Parser) Parse(ctx context.Context, src Source, mapping ColumnMapping, ownerID string) ([]ParsedRow, error) {
	const op = "parse"

	if err := mapping.Validate(p.registry); err != nil {
		return nil, err
	}
	kind, _ := p.registry.Get(mapping.Kind)

	records, err := readRecords(limitSize(src.Reader, p.opts.MaxFileSize), DetectFormat(src.FileName), mapping.Sheet)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, ValidationErrorf(op, "file exceeds maximum size of %d bytes", p.opts.MaxFileSize)
		}
		return nil, &Error{Kind: KindValidation, Op: op, Message: "unreadable input", Err: err}
	}

	headerAt := findHeader(records)
	if headerAt < 0 {
		return nil, ValidationErrorf(op, "no header row")
	}

	header := make([]string, len(records[headerAt].cells))
	for i, h := range records[headerAt].cells {
		header[i] = CleanCell(h)
	}
	rules, err := bindRules(kind, mapping, MakeHeaderIndex(header))
	if err != nil {
		return nil, err
	}

	rows := make([]ParsedRow, 0, len(records)-headerAt-1)
	for _, rec := range records[headerAt+1:] {
		if isEmptyRecord(rec.cells) {
			continue
		}
		if p.opts.MaxRows > 0 && len(rows) >= p.opts.MaxRows {
			return nil, ValidationErrorf(op, "file has more than %d data rows", p.opts.MaxRows)
		}
		if len(rows)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rows = append(rows, parseRecord(len(rows), rec, header, kind, rules, ownerID))
	}

	return rows, nil
}

// findHeader returns the index of the first non-empty record, or -1.
func findHeader(records []record) int {
	for i, rec := range records {
		if !isEmptyRecord(rec.cells) {
			return i
		}
	}
	return -1
}

// ReadHeader returns the cleaned header row of src without parsing the
// data rows.
func (p *Parser) ReadHeader(src Source, sheet string) ([]string, error) {
	const op = "read header"

	records, err := readRecords(limitSize(src.Reader, p.opts.MaxFileSize), DetectFormat(src.FileName), sheet)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, ValidationErrorf(op, "file exceeds maximum size of %d bytes", p.opts.MaxFileSize)
		}
		return nil, &Error{Kind: KindValidation, Op: op, Message: "unreadable input", Err: err}
	}
	at := findHeader(records)
	if at < 0 {
		return nil, ValidationErrorf(op, "no header row")
	}
	header := make([]string, len(records[at].cells))
	for i, h := range records[at].cells {
		header[i] = CleanCell(h)
	}
	return header, nil
}

// bindRules resolves each rule's source column. A required column that
// is absent from the header rejects the batch.
func bindRules(kind EntityKind, mapping ColumnMapping, idx HeaderIndex) ([]boundRule, error) {
	var missing []string
	rules := make([]boundRule, 0, len(mapping.Columns))

	for _, col := range mapping.Columns {
		spec, _ := kind.Field(col.Target)
		br := boundRule{ColumnRule: col, column: -1, spec: spec, transform: col.TransformFunc}
		if br.transform == nil && col.Transform != "" {
			br.transform, _ = LookupTransform(col.Transform)
		}
		if i, ok := idx.Lookup(col.Source); ok {
			br.column = i
		} else if col.Required && col.Default == "" {
			missing = append(missing, col.Source)
		}
		rules = append(rules, br)
	}

	if len(missing) > 0 {
		return nil, ValidationErrorf("parse", "missing required columns: %s", strings.Join(missing, ", "))
	}
	return rules, nil
}

func parseRecord(index int, rec record, header []string, kind EntityKind, rules []boundRule, ownerID string) ParsedRow {
	row := ParsedRow{
		Index:     index,
		Line:      rec.line,
		RawFields: make(map[string]string, len(header)),
	}
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(rec.cells) {
			row.RawFields[name] = rec.cells[i]
		} else {
			row.RawFields[name] = ""
		}
	}

	fields := make(Fields, len(rules))
	for _, r := range rules {
		raw := ""
		if r.column >= 0 && r.column < len(rec.cells) {
			raw = CleanCell(rec.cells[r.column])
		}
		if raw == "" {
			raw = r.Default
		}

		if raw != "" && r.transform != nil {
			out, err := r.transform(raw)
			if err != nil {
				row.ParseErrors = append(row.ParseErrors, rowError(row, r.Target, raw, err.Error()))
				continue
			}
			raw = strings.TrimSpace(out)
		}

		if raw == "" {
			if r.Required || r.spec.Required {
				row.ParseErrors = append(row.ParseErrors, rowError(row, r.Target, "", fmt.Sprintf("required field %q is missing", r.Target)))
			}
			continue
		}

		v, err := Coerce(r.spec, raw)
		if err != nil {
			row.ParseErrors = append(row.ParseErrors, rowError(row, r.Target, raw, fmt.Sprintf("invalid %s: %v", r.spec.Type, err)))
			continue
		}
		fields[r.Target] = v
	}

	if len(row.ParseErrors) == 0 {
		c := &Candidate{Kind: kind.Key, Fields: fields}
		if kind.Scope == ScopeOwner {
			c.OwnerID = ownerID
		}
		row.Candidate = c
	}
	return row
}

func rowError(row ParsedRow, field, value, msg string) RowError {
	return RowError{Row: row.Index, Line: row.Line, Field: field, Value: value, Message: msg}
}
