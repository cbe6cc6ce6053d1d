package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"soupbackup/oops"
)

type fakeResponse struct {
	code string
	body string
}

type fakeRequest struct {
	url         string
	maybeCookie *string
}

// fakeClient serves scripted responses per url. Each url's responses are consumed in order and the
// last one repeats. Unknown urls get a 404.
type fakeClient struct {
	mutex     sync.Mutex
	responses map[string][]fakeResponse
	requests  []fakeRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		mutex:     sync.Mutex{},
		responses: make(map[string][]fakeResponse),
		requests:  nil,
	}
}

func (c *fakeClient) serve(rawUrl string, responses ...fakeResponse) {
	c.responses[rawUrl] = append(c.responses[rawUrl], responses...)
}

func (c *fakeClient) Request(
	ctx context.Context, uri *url.URL, maybeCookie *string, logger Logger,
) (*HttpResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := uri.String()
	c.requests = append(c.requests, fakeRequest{url: key, maybeCookie: maybeCookie})
	queue := c.responses[key]
	if len(queue) == 0 {
		return &HttpResponse{Code: "404", MaybeContentType: nil, Body: nil}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		c.responses[key] = queue[1:]
	}
	return &HttpResponse{Code: resp.code, MaybeContentType: nil, Body: []byte(resp.body)}, nil
}

func (c *fakeClient) requestedUrls() []string {
	var urls []string
	for _, request := range c.requests {
		urls = append(urls, request.url)
	}
	return urls
}

func (c *fakeClient) requestCount(rawUrl string) int {
	count := 0
	for _, request := range c.requests {
		if request.url == rawUrl {
			count++
		}
	}
	return count
}

type fakeSleeper struct {
	durations []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, duration time.Duration) error {
	s.durations = append(s.durations, duration)
	return ctx.Err()
}

type fakeResources struct {
	bodies  map[string]string
	fetched []string
}

func newFakeResources(bodies map[string]string) *fakeResources {
	return &fakeResources{
		bodies:  bodies,
		fetched: nil,
	}
}

func (r *fakeResources) Fetch(ctx context.Context, rawUrl string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.fetched = append(r.fetched, rawUrl)
	body, ok := r.bodies[rawUrl]
	if !ok {
		return nil, oops.Newf("%w: %s (not found, code 404)", ErrResourceFetch, rawUrl)
	}
	return []byte(body), nil
}

type pageDoneCall struct {
	nextCursor string
	isFeedDone bool
}

type fakeJournal struct {
	pages []pageDoneCall
	posts []string
}

func (j *fakeJournal) PageDone(_ context.Context, _ string, nextCursor string, isFeedDone bool) error {
	j.pages = append(j.pages, pageDoneCall{nextCursor: nextCursor, isFeedDone: isFeedDone})
	return nil
}

func (j *fakeJournal) PostSaved(
	_ context.Context, _ string, post *Post, _ string, result WriteResult,
) error {
	j.posts = append(j.posts, post.Id+":"+result.String())
	return nil
}

const testRootUrl = "https://test.soup.io"

func feedPage(nextUrl string, posts ...string) string {
	return fmt.Sprintf(
		"<html><body><div id=\"posts\">%s</div><script>SOUP.Endless.next_url = '%s';</script></body></html>",
		strings.Join(posts, ""), nextUrl,
	)
}

func feedPageWithoutMarker(posts ...string) string {
	return fmt.Sprintf("<html><body><div id=\"posts\">%s</div></body></html>", strings.Join(posts, ""))
}

func imagePostHtml(id string, imageUrl string) string {
	return fmt.Sprintf(
		`<div class="post post_image" id="%s">`+
			`<div class="meta"><div class="icon type"><a href="%s/%s">#</a></div>`+
			`<div class="author"><div class="user_container user42"><a class="url" href="https://someone.soup.io">someone</a></div></div>`+
			`</div>`+
			`<div class="content-container"><div class="content">`+
			`<div class="imagecontainer"><img src="%s"></div>`+
			`</div></div></div>`,
		id, testRootUrl, id, imageUrl,
	)
}

func quotePostHtml(id string, quote string) string {
	return fmt.Sprintf(
		`<div class="post post_quote" id="%s">`+
			`<div class="meta"><div class="icon type"><a href="%s/%s">#</a></div>`+
			`<div class="author"><div class="user_container user42"><a class="url" href="https://someone.soup.io">someone</a></div></div>`+
			`</div>`+
			`<div class="content-container"><div class="content">`+
			`<span class="body">%s</span><cite>someone</cite>`+
			`</div></div></div>`,
		id, testRootUrl, id, quote,
	)
}

func reviewPostWithoutRatingHtml(id string) string {
	return fmt.Sprintf(
		`<div class="post post_review" id="%s">`+
			`<div class="meta"></div>`+
			`<div class="content"><a class="url" href="https://example.com">Book</a></div>`+
			`</div>`,
		id,
	)
}
