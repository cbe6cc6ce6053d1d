package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"soupbackup/oops/oopstest"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func parseTestPage(t *testing.T, body string) *Page {
	t.Helper()
	uri, err := url.Parse(testRootUrl)
	require.NoError(t, err)
	page, err := ParsePage([]byte(body), nil, uri)
	oopstest.RequireNoError(t, err)
	return page
}

func newTestExtractor(resources ResourceFetcher) (*Extractor, *DummyLogger) {
	logger := NewDummyLogger()
	return &Extractor{
		Query:     NewXPathQuery(),
		Resources: resources,
		Logger:    logger,
	}, logger
}

func TestExtractImagePost(t *testing.T) {
	body := feedPage("none", `
<div class="post post_image f_nsfw" id="post696270106">
  <div class="meta">
    <div class="icon type"><a href="https://test.soup.io/post/696270106/cat">#</a></div>
    <div class="author">
      <div class="user_container user8311"><a class="url" href="https://friend.soup.io">friend</a></div>
    </div>
  </div>
  <div class="content-container">
    <span class="time"><abbr title="Mar 15 2014 10:21:33 UTC">March 15</abbr></span>
    <div class="content">
      <div class="imagecontainer">
        <div class="caption"><a href="https://first.example.com">first</a><a href="https://example.com/src">source</a></div>
        <img src="https://asset.soup.io/asset/1/cat.jpg">
      </div>
      <div class="description"><p>A cat</p></div>
      <div class="tags"><a href="https://test.soup.io/tag/cats">cats</a><a href="https://test.soup.io/tag/pets">pets</a></div>
    </div>
  </div>
</div>`)
	extractor, logger := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	post := results[0].Post
	require.Equal(t, "post696270106", post.Id)
	require.Equal(t, "post_image", post.CssType)
	require.Equal(t, "image", post.Type)
	require.True(t, post.Nsfw)
	require.Equal(t, time.Date(2014, 3, 15, 10, 21, 33, 0, time.UTC), *post.Timestamp)
	require.Equal(t, "2014-03-15T10:21:33", post.Time)
	require.Equal(t, "https://test.soup.io/post/696270106/cat", post.Permalink)
	require.Equal(t, "user8311", post.AuthorId)
	require.Equal(t, "https://friend.soup.io", post.AuthorUrl)
	require.Equal(t, []Tag{
		{Link: "https://test.soup.io/tag/cats", Name: "cats"},
		{Link: "https://test.soup.io/tag/pets", Name: "pets"},
	}, post.Tags)
	require.Equal(t, ImagePayload{
		Source:      "https://example.com/src",
		Description: `<div class="description"><p>A cat</p></div>`,
	}, post.Payload)
	require.Contains(t, post.Raw, `id="post696270106"`)
	require.Empty(t, logger.Warnings())
}

func TestExtractQuotePost(t *testing.T) {
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(
		context.Background(), parseTestPage(t, feedPage("none", quotePostHtml("post2", "Hello"))),
	)

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	require.Nil(t, results[0].Post.Timestamp)
	require.Equal(t, "", results[0].Post.Time)
	require.False(t, results[0].Post.Nsfw)
	require.Equal(t, QuotePayload{
		Quote:       `<span class="body">Hello</span>`,
		Attribution: `<cite>someone</cite>`,
	}, results[0].Post.Payload)
}

func TestExtractKeepsDocumentOrderAndSkipsDecoys(t *testing.T) {
	body := feedPage("none",
		quotePostHtml("post3", "c"),
		`<div class="post post_regular" id="decoy"><p>no meta here</p></div>`,
		quotePostHtml("post1", "a"),
	)
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 2)
	require.Equal(t, "post3", results[0].Post.Id)
	require.Equal(t, "post1", results[1].Post.Id)
}

func TestExtractUnsupportedType(t *testing.T) {
	body := feedPage("none", `<div class="post post_hologram" id="post5"><div class="meta"></div></div>`)
	extractor, logger := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	require.Equal(t, "hologram", results[0].Post.Type)
	require.Equal(t, UnsupportedPayload{Unsupported: true}, results[0].Post.Payload)
	require.Contains(t, logger.Warnings(), `Post post5: unsupported type "hologram"`)
}

func TestExtractMalformedPost(t *testing.T) {
	body := feedPage("none",
		`<div class="post" id="post6"><div class="meta"></div></div>`,
		`<div class="post post_quote"><div class="meta"></div></div>`,
	)
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 2)
	require.ErrorIs(t, results[0].Err, ErrMalformedPost)
	require.ErrorIs(t, results[1].Err, ErrMalformedPost)
}

func TestExtractReviewRequiresRating(t *testing.T) {
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(
		context.Background(), parseTestPage(t, feedPage("none", reviewPostWithoutRatingHtml("post7"))),
	)

	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, ErrRequiredElement)
	require.Nil(t, results[0].Post)
}

func TestExtractReview(t *testing.T) {
	body := feedPage("none", `
<div class="post post_review" id="post8">
  <div class="meta"></div>
  <div class="content">
    <a class="url" href="https://example.com/book">The Book</a>
    <abbr class="rating" title="4">****</abbr>
    <div class="description">Good</div>
  </div>
</div>`)
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	require.Equal(t, ReviewPayload{
		Embed:       "",
		Description: `<div class="description">Good</div>`,
		Rating:      "4",
		Url:         "https://example.com/book",
		Title:       `<a class="url" href="https://example.com/book">The Book</a>`,
	}, results[0].Post.Payload)
}

const eventPostHtml = `
<div class="post post_event" id="post9">
  <div class="meta"></div>
  <div class="content">
    <a class="url" href="https://example.com/party">Party</a>
    <abbr class="dtstart" title="2014-05-01T20:00:00">May 1</abbr>
    <span class="location">Berlin</span>
    <div class="info"><a href="https://test.soup.io/event/9.ics">iCal</a></div>
  </div>
</div>`

func TestExtractEventFetchesIcal(t *testing.T) {
	resources := newFakeResources(map[string]string{
		"https://test.soup.io/event/9.ics": "BEGIN:VCALENDAR\nEND:VCALENDAR\n",
	})
	extractor, _ := newTestExtractor(resources)

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, feedPage("none", eventPostHtml)))

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	payload, ok := results[0].Post.Payload.(EventPayload)
	require.True(t, ok)
	require.Equal(t, "2014-05-01T20:00:00", payload.DateStart)
	require.Equal(t, "", payload.DateEnd)
	require.Equal(t, `<span class="location">Berlin</span>`, payload.Location)
	require.Equal(t, "https://test.soup.io/event/9.ics", payload.IcalUrl)
	require.Equal(t, "BEGIN:VCALENDAR\nEND:VCALENDAR\n", payload.IcalXml)
	require.Equal(t, []string{"https://test.soup.io/event/9.ics"}, resources.fetched)
}

func TestExtractEventFailsWhenIcalFails(t *testing.T) {
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, feedPage("none", eventPostHtml)))

	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, ErrResourceFetch)
}

func TestExtractVideoSourceOnlyWhenUnique(t *testing.T) {
	body := feedPage("none", `
<div class="post post_video" id="post10">
  <div class="meta"></div>
  <div class="embed"><iframe src="https://video.example.com/1"></iframe></div>
  <div class="admin-edit"><textarea class="sourcecode"> <iframe></iframe> </textarea></div>
  <div class="body">Watch</div>
</div>`)
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	payload, ok := results[0].Post.Payload.(VideoPayload)
	require.True(t, ok)
	require.Equal(t, "<iframe></iframe>", payload.Source)
	require.Equal(t, `<div class="body">Watch</div>`, payload.Body)
}

func metaPostHtml(id string, cssType string, content string) string {
	return fmt.Sprintf(
		`<div class="post %s" id="%s">`+
			`<div class="meta"><div class="icon type"><a href="%s/%s">#</a></div>`+
			`<div class="author"><div class="user_container user42"><a class="url" href="https://someone.soup.io">someone</a></div></div>`+
			`</div>`+
			`<div class="content-container"><div class="content">%s</div></div></div>`,
		cssType, id, testRootUrl, id, content,
	)
}

func TestExtractPayloads(t *testing.T) {
	type Test struct {
		description string
		cssType     string
		content     string
		expected    Payload
	}

	tests := []Test{
		{
			description: "link with title and body",
			cssType:     "post_link",
			content: `<h3><a href="https://example.com/article">Article</a></h3>` +
				`<span class="body">Worth a read</span>`,
			expected: LinkPayload{
				LinkTitle: `<h3><a href="https://example.com/article">Article</a></h3>`,
				Url:       "https://example.com/article",
				Body:      `<span class="body">Worth a read</span>`,
			},
		},
		{
			description: "link without heading",
			cssType:     "post_link",
			content:     `<span class="body">Just text</span>`,
			expected: LinkPayload{
				LinkTitle: "",
				Url:       "",
				Body:      `<span class="body">Just text</span>`,
			},
		},
		{
			description: "file with heading",
			cssType:     "post_file",
			content: `<h3><a href="https://asset.soup.io/asset/2/doc.pdf">doc.pdf</a></h3>` +
				`<div class="body">Slides</div>`,
			expected: FilePayload{
				LinkTitle: `<h3><a href="https://asset.soup.io/asset/2/doc.pdf">doc.pdf</a></h3>`,
				Url:       "https://asset.soup.io/asset/2/doc.pdf",
				Body:      `<div class="body">Slides</div>`,
			},
		},
		{
			description: "file without heading",
			cssType:     "post_file",
			content:     `<div class="body">Slides</div>`,
			expected: FilePayload{
				LinkTitle: "",
				Url:       "",
				Body:      `<div class="body">Slides</div>`,
			},
		},
		{
			description: "regular with title",
			cssType:     "post_regular",
			content:     `<h3>Hello</h3><div class="body"><p>First post</p></div>`,
			expected: RegularPayload{
				Title: `<h3>Hello</h3>`,
				Body:  `<div class="body"><p>First post</p></div>`,
			},
		},
		{
			description: "regular without title",
			cssType:     "post_regular",
			content:     `<div class="body"><p>Untitled</p></div>`,
			expected: RegularPayload{
				Title: "",
				Body:  `<div class="body"><p>Untitled</p></div>`,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			extractor, logger := newTestExtractor(newFakeResources(nil))
			body := feedPage("none", metaPostHtml("post20", tc.cssType, tc.content))

			results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

			require.Len(t, results, 1)
			oopstest.RequireNoError(t, results[0].Err)
			require.Equal(t, tc.expected, results[0].Post.Payload)
			require.Empty(t, logger.Warnings())
		})
	}
}

func TestExtractOmitsUnparseableTimestamp(t *testing.T) {
	body := feedPage("none", `<div class="post post_regular" id="post21">`+
		`<div class="meta"><div class="icon type"><a href="https://test.soup.io/post21">#</a></div>`+
		`<div class="author"><div class="user_container user42"><a class="url" href="https://someone.soup.io">someone</a></div></div>`+
		`</div>`+
		`<div class="content-container"><span class="time"><abbr title="sometime last week">then</abbr></span>`+
		`<div class="content"><div class="body">Hi</div></div></div></div>`)
	extractor, logger := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 1)
	oopstest.RequireNoError(t, results[0].Err)
	require.Nil(t, results[0].Post.Timestamp)
	require.Equal(t, "", results[0].Post.Time)
	require.Len(t, logger.Warnings(), 1)
	require.True(t, strings.HasPrefix(logger.Warnings()[0], `Post post21: couldn't parse timestamp "sometime last week"`))

	data, err := json.Marshal(results[0].Post)
	require.NoError(t, err)
	require.NotContains(t, string(data), `"time":`)
}

func TestExtractEventRequiresDateStart(t *testing.T) {
	eventWithoutStart := metaPostHtml("post22", "post_event",
		`<a class="url" href="https://example.com/party">Party</a><span class="location">Berlin</span>`)
	body := feedPage("none", eventWithoutStart, quotePostHtml("post23", "Still here"))
	resources := newFakeResources(nil)
	extractor, _ := newTestExtractor(resources)

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 2)
	require.ErrorIs(t, results[0].Err, ErrRequiredElement)
	require.Nil(t, results[0].Post)
	oopstest.RequireNoError(t, results[1].Err)
	require.Equal(t, "post23", results[1].Post.Id)
	require.Empty(t, resources.fetched)
}

func TestExtractRejectsPathLikeIds(t *testing.T) {
	body := feedPage("none",
		metaPostHtml("../../escaped", "post_regular", `<div class="body">x</div>`),
		metaPostHtml("post24", "post_..", `<div class="body">x</div>`),
		metaPostHtml(`a\b`, "post_regular", `<div class="body">x</div>`),
	)
	extractor, _ := newTestExtractor(newFakeResources(nil))

	results := extractor.ExtractPosts(context.Background(), parseTestPage(t, body))

	require.Len(t, results, 3)
	for _, result := range results {
		require.ErrorIs(t, result.Err, ErrMalformedPost)
		require.Nil(t, result.Post)
	}
}
