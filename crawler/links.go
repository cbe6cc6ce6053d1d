package crawler

import (
	neturl "net/url"
	"regexp"
	"strings"
)

var leadingWhitespaceRegex *regexp.Regexp
var trailingWhitespaceRegex *regexp.Regexp

func init() {
	leadingWhitespaceRegex =
		regexp.MustCompile("(?i)\\A( |\t|\n|\x00|\v|\f|\r|%20|%09|%0a|%00|%0b|%0c|%0d)+")
	trailingWhitespaceRegex =
		regexp.MustCompile("(?i)( |\t|\n|\x00|\v|\f|\r|%20|%09|%0a|%00|%0b|%0c|%0d)+\\z")
}

// ResolveLink turns an href found on a page into an absolute http(s) url that can be fetched.
// Records keep the href as it was on the page, only the fetch uses the resolved form.
func ResolveLink(url string, fetchUri *neturl.URL, logger Logger) (string, bool) {
	urlStripped := leadingWhitespaceRegex.ReplaceAllString(url, "")
	urlStripped = trailingWhitespaceRegex.ReplaceAllString(urlStripped, "")
	urlNewlinesRemoved := strings.ReplaceAll(urlStripped, "\n", "")

	uri, err := neturl.Parse(urlNewlinesRemoved)
	if err != nil {
		logger.Info("Invalid URL: %q from %q has %v", url, fetchUri, err)
		return "", false
	}

	if uri.Scheme == "" && fetchUri != nil {
		// Relative or protocol-relative
		uri = fetchUri.ResolveReference(uri)
	}

	if uri.Scheme != "http" && uri.Scheme != "https" {
		logger.Info("Invalid URL: %q from %q is not http(s)", url, fetchUri)
		return "", false
	}
	if uri.Host == "" {
		logger.Info("Invalid URL: %q from %q has no host", url, fetchUri)
		return "", false
	}
	if uri.User != nil {
		logger.Info("Invalid URL: %q from %q has userinfo: %s", url, fetchUri, uri.User)
		return "", false
	}

	if uri.Scheme == "http" {
		uri.Host = strings.TrimSuffix(uri.Host, ":80")
	}
	if uri.Scheme == "https" {
		uri.Host = strings.TrimSuffix(uri.Host, ":443")
	}
	uri.Fragment = ""
	uri.RawFragment = ""
	return uri.String(), true
}
