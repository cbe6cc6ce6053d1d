package crawler

import "errors"

// ErrRequiredElement fails a single post whose type mandates an element the markup lacks.
var ErrRequiredElement = errors.New("required element missing")

// ErrMalformedPost is returned for post elements that can't be classified at all.
var ErrMalformedPost = errors.New("malformed post")

// ErrResourceFetch wraps the final outcome of a nested fetch (iCal feed, asset) that didn't
// succeed.
var ErrResourceFetch = errors.New("resource fetch failed")

// ErrGaveUp ends a target after too many consecutive transient failures on the same url.
var ErrGaveUp = errors.New("gave up after repeated failures")
