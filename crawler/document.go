package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"soupbackup/oops"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

type Page struct {
	Document *html.Node
	FetchUri *url.URL
}

// ParsePage decodes the body according to its declared or sniffed charset before parsing.
func ParsePage(body []byte, maybeContentType *string, fetchUri *url.URL) (*Page, error) {
	contentType := ""
	if maybeContentType != nil {
		contentType = *maybeContentType
	}
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, oops.Wrapf(err, "decode %s", fetchUri)
	}
	document, err := html.Parse(reader)
	if err != nil {
		return nil, oops.Wrapf(err, "parse %s", fetchUri)
	}
	return &Page{
		Document: document,
		FetchUri: fetchUri,
	}, nil
}

// DocumentQuery is everything the extractors need from a parsed tree. Expressions are relative to
// the node they are evaluated on and never match the node itself.
type DocumentQuery interface {
	FindAll(node *html.Node, expr string) []*html.Node
	FindOne(node *html.Node, expr string) *html.Node
	Attr(node *html.Node, name string) (string, bool)
	Text(node *html.Node) string
	Serialize(node *html.Node) string
}

// XPathQuery evaluates XPath 1.0 expressions through htmlquery, caching compiled expressions.
type XPathQuery struct {
	mutex    sync.Mutex
	compiled map[string]*xpath.Expr
}

func NewXPathQuery() *XPathQuery {
	return &XPathQuery{
		mutex:    sync.Mutex{},
		compiled: make(map[string]*xpath.Expr),
	}
}

func (q *XPathQuery) compile(expr string) *xpath.Expr {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if compiled, ok := q.compiled[expr]; ok {
		return compiled
	}
	compiled := xpath.MustCompile(expr)
	q.compiled[expr] = compiled
	return compiled
}

func (q *XPathQuery) FindAll(node *html.Node, expr string) []*html.Node {
	return htmlquery.QuerySelectorAll(node, q.compile(expr))
}

func (q *XPathQuery) FindOne(node *html.Node, expr string) *html.Node {
	return htmlquery.QuerySelector(node, q.compile(expr))
}

func (q *XPathQuery) Attr(node *html.Node, name string) (string, bool) {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

func (q *XPathQuery) Text(node *html.Node) string {
	return htmlquery.InnerText(node)
}

func (q *XPathQuery) Serialize(node *html.Node) string {
	return htmlquery.OutputHTML(node, true)
}

// byClass builds a predicate matching one whitespace-separated class token, like CSS ".name".
func byClass(name string) string {
	return fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", name)
}

// classSelector turns a "tag.class1.class2" shorthand into an XPath step. An empty tag matches any
// element.
func classSelector(selector string) string {
	tokens := strings.Split(selector, ".")
	tag := tokens[0]
	if tag == "" {
		tag = "*"
	}
	var predicates []string
	for _, class := range tokens[1:] {
		predicates = append(predicates, byClass(class))
	}
	if len(predicates) == 0 {
		return tag
	}
	return fmt.Sprintf("%s[%s]", tag, strings.Join(predicates, " and "))
}

// descendant joins shorthand steps the way a CSS descendant combinator would.
func descendant(steps ...string) string {
	var b strings.Builder
	b.WriteString(".")
	for _, step := range steps {
		b.WriteString("//")
		b.WriteString(classSelector(step))
	}
	return b.String()
}

// child joins shorthand steps the way a CSS child combinator would, with the first step matched
// anywhere below the context node.
func child(steps ...string) string {
	var b strings.Builder
	b.WriteString(".")
	for i, step := range steps {
		if i == 0 {
			b.WriteString("//")
		} else {
			b.WriteString("/")
		}
		b.WriteString(classSelector(step))
	}
	return b.String()
}

func classTokens(query DocumentQuery, node *html.Node) []string {
	class, _ := query.Attr(node, "class")
	return strings.Fields(class)
}
