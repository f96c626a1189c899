package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/seaward/sluice/internal/record"
)

// jsonlParser reads one JSON object per line, the shape exports produce.
// Strings map to single values and arrays of scalars to multi-values;
// numbers and booleans are stringified. Nulls and nested objects carry no
// mappable value and are dropped. Field order follows the document, which
// keeps fingerprints stable for identical lines.
type jsonlParser struct{}

const maxLineBytes = 16 * 1024 * 1024

func (jsonlParser) Parse(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	var records []*record.Record

	sc := bufio.NewScanner(normalize(r))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		rec, err := decodeLine(text)
		if err != nil {
			return nil, &MalformedError{Format: "jsonl", Err: fmt.Errorf("line %d: %w", line, err)}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, &MalformedError{Format: "jsonl", Err: err}
	}
	if len(records) == 0 {
		return nil, ErrEmptyFeed
	}
	return records, nil
}

func decodeLine(text string) (*record.Record, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	rec := record.New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a key, got %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		addValue(rec, key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after object")
	}
	return rec, nil
}

func addValue(rec *record.Record, key string, val any) {
	switch v := val.(type) {
	case string:
		rec.Add(key, v)
	case json.Number:
		rec.Add(key, v.String())
	case bool:
		rec.Add(key, strconv.FormatBool(v))
	case []any:
		for _, elem := range v {
			addValue(rec, key, elem)
		}
	}
}
