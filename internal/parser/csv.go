package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/seaward/sluice/internal/record"
)

// csvParser reads delimited rows. Options: "delimiter" (single character,
// default comma) and "header" (comma-separated field names for payloads
// that carry none).
type csvParser struct {
	comma  rune
	header []string
}

func newCSVParser(options map[string]string) (*csvParser, error) {
	p := &csvParser{comma: ','}
	if d, ok := options["delimiter"]; ok {
		runes := []rune(d)
		if len(runes) != 1 {
			return nil, fmt.Errorf("csv delimiter must be one character, got %q", d)
		}
		p.comma = runes[0]
	}
	if h, ok := options["header"]; ok && h != "" {
		for _, name := range strings.Split(h, ",") {
			p.header = append(p.header, strings.TrimSpace(name))
		}
	}
	return p, nil
}

// Parse reads the payload into records. The first non-empty row names the
// fields unless the source configured its own header. Repeats of the
// header row are dropped, so concatenated directory payloads parse clean.
func (p *csvParser) Parse(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	cr := csv.NewReader(normalize(r))
	cr.Comma = p.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &MalformedError{Format: "csv", Err: err}
	}

	header := p.header
	var records []*record.Record
	for _, row := range rows {
		if emptyRow(row) {
			continue
		}
		if header == nil {
			header = make([]string, len(row))
			for i, cell := range row {
				header[i] = cleanCell(cell)
			}
			continue
		}
		if p.header == nil && repeatsHeader(row, header) {
			continue
		}
		rec := record.New()
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec.Add(header[i], cleanCell(cell))
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFeed
	}
	return records, nil
}

// cleanCell strips the artifacts spreadsheet exports leave in cells:
// padding and the ="..." wrapper Excel uses to force text.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	}
	return s
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func repeatsHeader(row, header []string) bool {
	if len(row) != len(header) {
		return false
	}
	for i := range row {
		if !strings.EqualFold(cleanCell(row[i]), header[i]) {
			return false
		}
	}
	return true
}
