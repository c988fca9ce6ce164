// Package feed normalizes mirror feed documents into Post records.
package feed

import (
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"html"
	"regexp"
	"strings"
)

const fingerprintLen = 16

// htmlTagRe only matches complete tags, so a bare "<" in post text survives.
var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// Post is one normalized feed entry.
type Post struct {
	Title     string // sanitized text
	Link      string // verbatim, may be empty
	Published string // verbatim upstream timestamp
	Content   string // sanitized text
	ID        string // Fingerprint(Link, Title)
}

// NewPost sanitizes the text fields and derives the post identity.
func NewPost(title, link, published, content string) Post {
	p := Post{
		Title:     Sanitize(title),
		Link:      link,
		Published: published,
		Content:   Sanitize(content),
	}
	p.ID = Fingerprint(p.Link, p.Title)
	return p
}

// Fingerprint returns the first 16 hex chars of md5(link + ":" + title). The
// format matches imported seen_tweets.json ledgers.
func Fingerprint(link, title string) string {
	sum := md5.Sum([]byte(link + ":" + title)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// Sanitize strips complete tags, decodes entities and collapses whitespace.
// Tags are removed without a separator, the same way legacy ids were built.
func Sanitize(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
