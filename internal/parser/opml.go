package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/seaward/sluice/internal/record"
)

// opmlParser reads subscription lists, one record per outline that carries
// an xmlUrl. Fields: title, xmlurl, htmlurl, category (the path of
// enclosing outlines, slash-joined).
type opmlParser struct{}

type opmlDocument struct {
	XMLName xml.Name      `xml:"opml"`
	Body    []opmlOutline `xml:"body>outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Children []opmlOutline `xml:"outline"`
}

func (opmlParser) Parse(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	data, err := readPayload(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, bomUTF8)

	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedError{Format: "opml", Err: err}
	}

	var records []*record.Record
	collectOutlines(doc.Body, nil, &records)
	if len(records) == 0 {
		return nil, ErrEmptyFeed
	}
	return records, nil
}

func collectOutlines(outlines []opmlOutline, path []string, records *[]*record.Record) {
	for _, o := range outlines {
		label := o.Title
		if label == "" {
			label = o.Text
		}
		if o.XMLURL != "" {
			rec := record.New()
			setIf(rec, "title", label)
			rec.Set("xmlurl", o.XMLURL)
			setIf(rec, "htmlurl", o.HTMLURL)
			setIf(rec, "category", strings.Join(path, "/"))
			*records = append(*records, rec)
		}
		if len(o.Children) > 0 {
			child := append(append([]string(nil), path...), label)
			collectOutlines(o.Children, child, records)
		}
	}
}
