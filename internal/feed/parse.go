package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// Format is the document shape a feed was resolved to.
type Format int

const (
	FormatUnknown Format = iota
	FormatChannel        // rss > channel > item
	FormatEntry          // atom feed > entry
)

func (f Format) String() string {
	switch f {
	case FormatChannel:
		return "channel"
	case FormatEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// ErrUnknownFormat is wrapped by ParseError when the document is neither
// a channel nor an entry feed.
var ErrUnknownFormat = errors.New("unknown feed format")

const maxPageRunes = 80

// ParseError reports a document that could not be normalized. Page holds
// the text of an HTML page served instead of a feed, such as a mirror's
// rate limit notice.
type ParseError struct {
	Format Format
	Page   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Page != "" {
		return fmt.Sprintf("parse %s feed: %v (page %q)", e.Format, e.Err, e.Page)
	}
	return fmt.Sprintf("parse %s feed: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DetectFormat resolves the document shape once, from its root element.
func DetectFormat(raw []byte) Format {
	switch gofeed.DetectFeedType(bytes.NewReader(raw)) {
	case gofeed.FeedTypeRSS:
		return FormatChannel
	case gofeed.FeedTypeAtom:
		return FormatEntry
	default:
		return FormatUnknown
	}
}

// Parse normalizes raw feed content into posts in document order.
// Malformed input yields no posts and a *ParseError; it never panics.
func Parse(raw []byte) (posts []Post, err error) {
	format := DetectFormat(raw)

	defer func() {
		if r := recover(); r != nil {
			posts = nil
			err = &ParseError{Format: format, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	switch format {
	case FormatChannel:
		posts, err = parseChannel(raw)
	case FormatEntry:
		posts, err = parseEntries(raw)
	default:
		return nil, &ParseError{Format: format, Page: pageText(raw), Err: ErrUnknownFormat}
	}
	if err != nil {
		return nil, &ParseError{Format: format, Err: err}
	}

	return posts, nil
}

// pageText summarizes an HTML page by its title, or by its body text when
// it has none. Anything that is not an HTML page yields "".
func pageText(raw []byte) string {
	if !bytes.Contains(bytes.ToLower(raw), []byte("<html")) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	text := doc.Find("title").First().Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > maxPageRunes {
		runes = runes[:maxPageRunes]
	}
	return string(runes)
}

func parseChannel(raw []byte) ([]Post, error) {
	var p rss.Parser
	doc, err := p.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(doc.Items))
	for _, item := range doc.Items {
		if item == nil {
			continue
		}
		posts = append(posts, NewPost(item.Title, item.Link, item.PubDate, item.Description))
	}
	return posts, nil
}

func parseEntries(raw []byte) ([]Post, error) {
	var p atom.Parser
	doc, err := p.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		if entry == nil {
			continue
		}
		posts = append(posts, NewPost(entry.Title, entryLink(entry), entry.Published, entryContent(entry)))
	}
	return posts, nil
}

// entryLink takes the first link's href, matching what mirrors emit.
func entryLink(entry *atom.Entry) string {
	if len(entry.Links) == 0 || entry.Links[0] == nil {
		return ""
	}
	return entry.Links[0].Href
}

func entryContent(entry *atom.Entry) string {
	if entry.Content == nil {
		return ""
	}
	return entry.Content.Value
}
