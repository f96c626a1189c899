package parser

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/seaward/sluice/internal/record"
)

// feedParser reads RSS and Atom documents, one record per item. Fields:
// guid (falls back to the link), title, link, description, content,
// published, updated, author, categories (multi-value).
type feedParser struct{}

func (feedParser) Parse(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	data, err := readPayload(r)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &MalformedError{Format: "feed", Err: err}
	}
	if len(feed.Items) == 0 {
		return nil, ErrEmptyFeed
	}

	records := make([]*record.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		rec := record.New()
		setIf(rec, "guid", guid)
		setIf(rec, "title", item.Title)
		setIf(rec, "link", item.Link)
		setIf(rec, "description", item.Description)
		setIf(rec, "content", item.Content)
		setIf(rec, "published", itemTime(item.PublishedParsed, item.Published))
		setIf(rec, "updated", itemTime(item.UpdatedParsed, item.Updated))
		setIf(rec, "author", itemAuthor(item))
		if len(item.Categories) > 0 {
			rec.Set("categories", item.Categories...)
		}
		records = append(records, rec)
	}
	return records, nil
}

func itemTime(parsed *time.Time, raw string) string {
	if parsed != nil {
		return parsed.UTC().Format(time.RFC3339)
	}
	return raw
}

func itemAuthor(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a == nil {
			continue
		}
		if a.Name != "" {
			return a.Name
		}
		if a.Email != "" {
			return a.Email
		}
	}
	return ""
}

func setIf(rec *record.Record, name, value string) {
	if value != "" {
		rec.Set(name, value)
	}
}
