package crawler

import (
	"strings"
)

type CursorKind int

const (
	CursorFound CursorKind = iota
	CursorEndOfFeed
	CursorNotFound
)

func (k CursorKind) String() string {
	switch k {
	case CursorFound:
		return "found"
	case CursorEndOfFeed:
		return "end of feed"
	case CursorNotFound:
		return "not found"
	default:
		panic("Unknown cursor kind")
	}
}

type CursorResult struct {
	Kind   CursorKind
	Cursor string
}

const endlessScrollMarker = "SOUP.Endless.next_url"
const endOfFeedValue = "none"

// FindNextCursor looks for the endless-scroll widget's next url. A marker with "none" or an empty
// value is the end of the feed; a page without any marker, or with a marker whose value can't be
// read, most likely didn't render completely.
func FindNextCursor(page *Page, query DocumentQuery) CursorResult {
	for _, script := range query.FindAll(page.Document, ".//script") {
		text := query.Text(script)
		if !strings.Contains(text, endlessScrollMarker) {
			continue
		}

		value, ok := lastQuotedLiteral(text)
		if !ok {
			return CursorResult{Kind: CursorNotFound, Cursor: ""}
		}
		cursor := NormalizeCursor(value)
		if value == endOfFeedValue || cursor == "" {
			return CursorResult{Kind: CursorEndOfFeed, Cursor: ""}
		}
		return CursorResult{Kind: CursorFound, Cursor: cursor}
	}
	return CursorResult{Kind: CursorNotFound, Cursor: ""}
}

// lastQuotedLiteral returns the contents of the last '...' pair, trimmed. A marker without such a
// pair is malformed rather than empty.
func lastQuotedLiteral(text string) (string, bool) {
	tokens := strings.Split(text, "'")
	if len(tokens) < 3 {
		return "", false
	}
	return strings.TrimSpace(tokens[len(tokens)-2]), true
}

// NormalizeCursor accepts a post id ("post696270106"), a copied sub-url
// ("/since/696270106?mode=own") or an already normalized cursor and returns the part that follows
// "/since/".
func NormalizeCursor(raw string) string {
	cursor := strings.TrimSpace(raw)
	cursor = strings.TrimPrefix(cursor, "/since/")
	cursor = strings.TrimPrefix(cursor, "post")
	return cursor
}
