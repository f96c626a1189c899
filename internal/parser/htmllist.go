package parser

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/seaward/sluice/internal/record"
)

// htmlListParser scrapes a listing page into records. The "selector"
// option locates the item nodes. Each "field.<name>" option extracts one
// field per item: "css" takes the matched node's text, "css@attr" an
// attribute, and "." or a bare "@attr" address the item node itself.
// Without field options the parser emits title (the item's text) plus url
// and guid from the item's first link.
type htmlListParser struct {
	items  goquery.Matcher
	fields []fieldSelector
}

type fieldSelector struct {
	name    string
	matcher goquery.Matcher // nil means the item node itself
	attr    string
}

func newHTMLListParser(options map[string]string) (*htmlListParser, error) {
	selector := options["selector"]
	if selector == "" {
		return nil, fmt.Errorf("htmllist parser needs a selector option")
	}
	items, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	p := &htmlListParser{items: items}

	keys := make([]string, 0, len(options))
	for key := range options {
		if strings.HasPrefix(key, "field.") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := strings.TrimPrefix(key, "field.")
		if name == "" {
			return nil, fmt.Errorf("invalid field option %q", key)
		}
		css, attr, _ := strings.Cut(options[key], "@")
		fs := fieldSelector{name: name, attr: attr}
		if css != "" && css != "." {
			m, err := cascadia.Compile(css)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid selector %q: %w", name, css, err)
			}
			fs.matcher = m
		}
		p.fields = append(p.fields, fs)
	}
	return p, nil
}

func (p *htmlListParser) Parse(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &MalformedError{Format: "htmllist", Err: err}
	}

	var records []*record.Record
	doc.FindMatcher(p.items).Each(func(_ int, item *goquery.Selection) {
		rec := record.New()
		if len(p.fields) == 0 {
			link := item.Find("a").First()
			href, _ := link.Attr("href")
			setIf(rec, "guid", href)
			setIf(rec, "title", strings.TrimSpace(item.Text()))
			setIf(rec, "url", href)
		} else {
			for _, f := range p.fields {
				sel := item
				if f.matcher != nil {
					sel = item.FindMatcher(f.matcher).First()
				}
				var value string
				if f.attr == "" {
					value = strings.TrimSpace(sel.Text())
				} else {
					value, _ = sel.Attr(f.attr)
				}
				setIf(rec, f.name, value)
			}
		}
		if !rec.IsEmpty() {
			records = append(records, rec)
		}
	})
	if len(records) == 0 {
		return nil, ErrEmptyFeed
	}
	return records, nil
}
