package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"soupbackup/oops"

	"golang.org/x/net/html"
)

type Tag struct {
	Link string `json:"link"`
	Name string `json:"name"`
}

type Asset struct {
	Url      string `json:"url"`
	Filename string `json:"filename"`
}

type Post struct {
	CssType   string     `json:"css_type"`
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"-"`
	Time      string     `json:"time,omitempty"`
	Id        string     `json:"id"`
	Nsfw      bool       `json:"nsfw"`
	Permalink string     `json:"permalink"`
	AuthorId  string     `json:"author_id"`
	AuthorUrl string     `json:"author_url"`
	Tags      []Tag      `json:"tags"`
	Raw       string     `json:"raw"`
	Payload   Payload    `json:"post"`
	Assets    []Asset    `json:"assets"`
}

// PostTimeLayout is how timestamps are rendered in records and file names.
const PostTimeLayout = "2006-01-02T15:04:05"

const sourceTimeLayout = "Jan 2 2006 15:04:05 MST"

const cssTypePrefix = "post_"

// PostResult carries either an extracted post or the reason that one post element couldn't be
// extracted. Node is kept for asset resolution.
type PostResult struct {
	Post *Post
	Node *html.Node
	Err  error
}

type Extractor struct {
	Query     DocumentQuery
	Resources ResourceFetcher
	Logger    Logger
}

// fetchUri is the url of the page the post was on, for resolving relative links.
type payloadExtractor func(
	ctx context.Context, e *Extractor, node *html.Node, fetchUri *url.URL,
) (Payload, error)

var payloadExtractors = map[string]payloadExtractor{
	"image":   extractImage,
	"quote":   extractQuote,
	"video":   extractVideo,
	"link":    extractLink,
	"file":    extractFile,
	"review":  extractReview,
	"event":   extractEvent,
	"regular": extractRegular,
}

var postsXPath = ".//div[" + byClass("post") + "]"
var metaXPath = descendant("div.meta")
var timeXPath = child("span.time", "abbr")
var permalinkXPath = descendant(".meta", ".icon.type", "a")
var authorXPath = descendant(".meta", "div.author", ".user_container")
var authorUrlXPath = descendant("a.url")
var tagsXPath = child(".content-container", ".content", ".tags", "a")

// ExtractPosts returns the page's posts in document order. Elements styled like posts but without
// a meta block are nested decoys and are skipped silently.
func (e *Extractor) ExtractPosts(ctx context.Context, page *Page) []PostResult {
	var results []PostResult
	for _, node := range e.Query.FindAll(page.Document, postsXPath) {
		if e.Query.FindOne(node, metaXPath) == nil {
			continue
		}
		post, err := e.extractPost(ctx, node, page.FetchUri)
		results = append(results, PostResult{
			Post: post,
			Node: node,
			Err:  err,
		})
		if err != nil && ctx.Err() != nil {
			break
		}
	}
	return results
}

func (e *Extractor) extractPost(ctx context.Context, node *html.Node, fetchUri *url.URL) (*Post, error) {
	id, _ := e.Query.Attr(node, "id")
	classes := classTokens(e.Query, node)
	if len(classes) < 2 {
		return nil, oops.Newf("%w: post %q has no type class", ErrMalformedPost, id)
	}
	cssType := classes[1]
	postType := strings.TrimPrefix(cssType, cssTypePrefix)
	if id == "" {
		return nil, oops.Newf("%w: %s post without id", ErrMalformedPost, postType)
	}
	if !IsSafeNamePart(id) || !IsSafeNamePart(postType) {
		return nil, oops.Newf("%w: post %q has unusable id or type %q", ErrMalformedPost, id, postType)
	}

	post := &Post{
		CssType:   cssType,
		Type:      postType,
		Timestamp: nil,
		Time:      "",
		Id:        id,
		Nsfw:      false,
		Permalink: "",
		AuthorId:  "",
		AuthorUrl: "",
		Tags:      []Tag{},
		Raw:       e.Query.Serialize(node),
		Payload:   nil,
		Assets:    []Asset{},
	}
	for _, class := range classes {
		if class == "f_nsfw" {
			post.Nsfw = true
		}
	}

	if timestamp := e.extractTimestamp(node, id); timestamp != nil {
		post.Timestamp = timestamp
		post.Time = timestamp.Format(PostTimeLayout)
	}

	if permalink := e.Query.FindOne(node, permalinkXPath); permalink != nil {
		post.Permalink, _ = e.Query.Attr(permalink, "href")
	} else {
		e.Logger.Warn("Post %s: no permalink", id)
	}

	if author := e.Query.FindOne(node, authorXPath); author != nil {
		for _, class := range classTokens(e.Query, author) {
			if class != "user_container" {
				post.AuthorId = class
				break
			}
		}
		if authorUrl := e.Query.FindOne(author, authorUrlXPath); authorUrl != nil {
			post.AuthorUrl, _ = e.Query.Attr(authorUrl, "href")
		}
	} else {
		e.Logger.Warn("Post %s: no author", id)
	}

	for _, tagLink := range e.Query.FindAll(node, tagsXPath) {
		link, _ := e.Query.Attr(tagLink, "href")
		post.Tags = append(post.Tags, Tag{
			Link: link,
			Name: e.Query.Text(tagLink),
		})
	}

	extract, ok := payloadExtractors[postType]
	if !ok {
		e.Logger.Warn("Post %s: unsupported type %q", id, postType)
		post.Payload = UnsupportedPayload{Unsupported: true}
	} else {
		payload, err := extract(ctx, e, node, fetchUri)
		if err != nil {
			return nil, oops.Wrapf(err, "%s post %s", postType, id)
		}
		post.Payload = payload
	}

	e.Logger.Info("%s: %s %s", formatMaybeTime(post.Timestamp), post.Payload.payloadType(), post.Permalink)
	return post, nil
}

func (e *Extractor) extractTimestamp(node *html.Node, id string) *time.Time {
	abbr := e.Query.FindOne(node, timeXPath)
	if abbr == nil {
		return nil
	}
	title, _ := e.Query.Attr(abbr, "title")
	timestamp, err := time.Parse(sourceTimeLayout, strings.TrimSpace(title))
	if err != nil {
		e.Logger.Warn("Post %s: couldn't parse timestamp %q: %v", id, title, err)
		return nil
	}
	timestamp = timestamp.UTC()
	return &timestamp
}

func formatMaybeTime(maybeTime *time.Time) string {
	if maybeTime == nil {
		return "no time"
	}
	return maybeTime.Format(PostTimeLayout)
}

// Helpers below return "" when the element is absent, which the payload fields omit.

func (e *Extractor) serializeFirst(node *html.Node, expr string) string {
	found := e.Query.FindOne(node, expr)
	if found == nil {
		return ""
	}
	return e.Query.Serialize(found)
}

func (e *Extractor) serializeLast(node *html.Node, expr string) string {
	found := e.Query.FindAll(node, expr)
	if len(found) == 0 {
		return ""
	}
	return e.Query.Serialize(found[len(found)-1])
}

func (e *Extractor) attrFirst(node *html.Node, expr string, name string) string {
	found := e.Query.FindOne(node, expr)
	if found == nil {
		return ""
	}
	value, _ := e.Query.Attr(found, name)
	return value
}

func (e *Extractor) requiredAttr(node *html.Node, expr string, name string) (string, error) {
	found := e.Query.FindOne(node, expr)
	if found == nil {
		return "", fmt.Errorf("%w: %s", ErrRequiredElement, expr)
	}
	value, ok := e.Query.Attr(found, name)
	if !ok {
		return "", fmt.Errorf("%w: %s@%s", ErrRequiredElement, expr, name)
	}
	return value, nil
}

var descriptionXPath = descendant("div.description")
var h3XPath = descendant("h3")
var h3LinkXPath = descendant("h3", "a")
var spanBodyXPath = descendant("span.body")
var divBodyXPath = descendant("div.body")
var embedXPath = descendant("div.embed")
var urlLinkXPath = descendant("a.url")

func extractImage(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	var payload ImagePayload
	captionLinks := e.Query.FindAll(node, child(".imagecontainer", ".caption", "a"))
	if len(captionLinks) > 0 {
		payload.Source, _ = e.Query.Attr(captionLinks[len(captionLinks)-1], "href")
	}
	payload.Description = e.serializeLast(node, descriptionXPath)
	return payload, nil
}

func extractQuote(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	return QuotePayload{
		Quote:       e.serializeFirst(node, spanBodyXPath),
		Attribution: e.serializeFirst(node, descendant("cite")),
	}, nil
}

func extractLink(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	return LinkPayload{
		LinkTitle: e.serializeFirst(node, h3XPath),
		Url:       e.attrFirst(node, h3LinkXPath, "href"),
		Body:      e.serializeFirst(node, spanBodyXPath),
	}, nil
}

func extractVideo(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	payload := VideoPayload{
		Embed:  e.serializeFirst(node, embedXPath),
		Source: "",
		Body:   e.serializeFirst(node, divBodyXPath),
	}
	// Only soups the session can edit expose the embed's source code.
	sources := e.Query.FindAll(node, descendant("div.admin-edit", "textarea.sourcecode"))
	if len(sources) == 1 {
		payload.Source = strings.TrimSpace(e.Query.Text(sources[0]))
	}
	return payload, nil
}

func extractFile(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	var payload FilePayload
	if heading := e.Query.FindOne(node, h3XPath); heading != nil {
		payload.LinkTitle = e.Query.Serialize(heading)
		payload.Url = e.attrFirst(heading, descendant("a"), "href")
	}
	payload.Body = e.serializeFirst(node, divBodyXPath)
	return payload, nil
}

func extractReview(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	rating, err := e.requiredAttr(node, descendant("abbr.rating"), "title")
	if err != nil {
		return nil, err
	}
	return ReviewPayload{
		Embed:       e.serializeFirst(node, embedXPath),
		Description: e.serializeFirst(node, descriptionXPath),
		Rating:      rating,
		Url:         e.attrFirst(node, urlLinkXPath, "href"),
		Title:       e.serializeFirst(node, urlLinkXPath),
	}, nil
}

func extractEvent(ctx context.Context, e *Extractor, node *html.Node, fetchUri *url.URL) (Payload, error) {
	dateStart, err := e.requiredAttr(node, descendant("abbr.dtstart"), "title")
	if err != nil {
		return nil, err
	}
	payload := EventPayload{
		Url:         e.attrFirst(node, urlLinkXPath, "href"),
		Title:       e.serializeFirst(node, urlLinkXPath),
		DateStart:   dateStart,
		DateEnd:     e.attrFirst(node, descendant("abbr.dtend"), "title"),
		Location:    e.serializeFirst(node, descendant("span.location")),
		IcalUrl:     e.attrFirst(node, descendant("div.info", "a"), "href"),
		IcalXml:     "",
		Description: e.serializeFirst(node, descriptionXPath),
	}
	if payload.IcalUrl != "" {
		icalUrl, ok := ResolveLink(payload.IcalUrl, fetchUri, e.Logger)
		if !ok {
			return nil, fmt.Errorf("%w: invalid iCal url %q", ErrResourceFetch, payload.IcalUrl)
		}
		ical, err := e.Resources.Fetch(ctx, icalUrl)
		if err != nil {
			return nil, err
		}
		payload.IcalXml = string(ical)
	}
	return payload, nil
}

func extractRegular(_ context.Context, e *Extractor, node *html.Node, _ *url.URL) (Payload, error) {
	return RegularPayload{
		Title: e.serializeFirst(node, h3XPath),
		Body:  e.serializeFirst(node, divBodyXPath),
	}, nil
}
