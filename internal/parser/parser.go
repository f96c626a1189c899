// Package parser turns raw payloads into records. Every format produces
// the same shape: an ordered list of records with string-valued fields,
// ready for the mapping engine. Parsers never touch the store.
package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/seaward/sluice/internal/core"
)

// ErrEmptyFeed reports a payload with no entries. It is the pipeline
// sentinel, re-exported so parser callers need not import the core.
var ErrEmptyFeed = core.ErrEmptyFeed

// MalformedError reports a payload the format could not decode. Distinct
// from ErrEmptyFeed: the payload had content, just not usable content.
type MalformedError struct {
	Format string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Format, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// readPayload buffers a payload for formats whose decoder needs the whole
// document, turning blank input into ErrEmptyFeed up front.
func readPayload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFeed
	}
	return data, nil
}

// Factory returns the parser factory the operation layer consumes.
func Factory() core.ParserFactory {
	return func(format string, options map[string]string) (core.Parser, error) {
		switch format {
		case "csv":
			return newCSVParser(options)
		case "feed":
			return &feedParser{}, nil
		case "opml":
			return &opmlParser{}, nil
		case "htmllist":
			return newHTMLListParser(options)
		case "jsonl":
			return &jsonlParser{}, nil
		default:
			return nil, fmt.Errorf("unknown parser format %q", format)
		}
	}
}
