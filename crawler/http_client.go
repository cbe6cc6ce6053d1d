package crawler

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

type HttpResponse struct {
	Code             string
	MaybeContentType *string
	Body             []byte
}

func newHttpResponse(code string) *HttpResponse {
	return &HttpResponse{
		Code:             code,
		MaybeContentType: nil,
		Body:             nil,
	}
}

// HttpClient performs exactly one GET per call. Network failures are reported through
// HttpResponse.Code, the returned error is reserved for context cancellation.
type HttpClient interface {
	Request(ctx context.Context, uri *url.URL, maybeCookie *string, logger Logger) (*HttpResponse, error)
}

const SessionCookieName = "soup_session_id"

type HttpClientImpl struct {
	Client    *http.Client
	Limiter   *rate.Limiter
	UserAgent string
}

// NewHttpClientImpl throttles to requestsPerSecond when it is positive.
func NewHttpClientImpl(requestsPerSecond float64) *HttpClientImpl {
	var client http.Client
	client.Timeout = 5 * time.Minute
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &HttpClientImpl{
		Client:    &client,
		Limiter:   limiter,
		UserAgent: "Mozilla/5.0 (compatible; soupbackup/1.0)",
	}
}

const maxContentLength = 512 * 1024 * 1024

const codeError = "Error"
const codeTimeout = "Timeout"
const codeSSLError = "SSLError"
const codeResponseBodyTooBig = "ResponseBodyTooBig"

func (c *HttpClientImpl) Request(
	ctx context.Context, uri *url.URL, maybeCookie *string, logger Logger,
) (*HttpResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		logger.Info("HTTP new request error: %v", err)
		return newHttpResponse(codeError), nil
	}
	req.Header.Add("User-Agent", c.UserAgent)
	if maybeCookie != nil {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: *maybeCookie}) //nolint:exhaustruct
	}

	resp, err := c.Client.Do(req)
	var hostnameError x509.HostnameError
	var unknownAuthorityError x509.UnknownAuthorityError
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	} else if errors.As(err, &hostnameError) || errors.As(err, &unknownAuthorityError) {
		return newHttpResponse(codeSSLError), nil
	} else if os.IsTimeout(err) {
		return newHttpResponse(codeTimeout), nil
	} else if err != nil {
		logger.Info("HTTP request error: %v", err)
		return newHttpResponse(codeError), nil
	}
	defer resp.Body.Close()

	if resp.ContentLength > maxContentLength {
		return newHttpResponse(codeResponseBodyTooBig), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentLength+1))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	} else if err != nil {
		logger.Info("HTTP read body error: %v", err)
		return newHttpResponse(codeError), nil
	}
	if len(body) > maxContentLength {
		return newHttpResponse(codeResponseBodyTooBig), nil
	}

	var maybeContentType *string
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		maybeContentType = &contentType
	}

	return &HttpResponse{
		Code:             fmt.Sprint(resp.StatusCode),
		MaybeContentType: maybeContentType,
		Body:             body,
	}, nil
}

type FetchOutcome int

const (
	FetchSuccess FetchOutcome = iota
	FetchRateLimited
	FetchNotFound
	FetchHttpError
	FetchTransportError
)

func (o FetchOutcome) String() string {
	switch o {
	case FetchSuccess:
		return "success"
	case FetchRateLimited:
		return "rate limited"
	case FetchNotFound:
		return "not found"
	case FetchHttpError:
		return "http error"
	case FetchTransportError:
		return "transport error"
	default:
		panic("Unknown fetch outcome")
	}
}

// IsTransient tells whether the same request is worth repeating after a pause.
func (o FetchOutcome) IsTransient() bool {
	return o == FetchRateLimited || o == FetchHttpError || o == FetchTransportError
}

// ClassifyResponse maps a response to a fetch outcome. Statuses outside of 200, 404, 429 and
// >= 400 (redirect loops, 1xx, 2xx other than 200) are treated like transport errors.
func ClassifyResponse(resp *HttpResponse) FetchOutcome {
	status, err := strconv.Atoi(resp.Code)
	if err != nil {
		return FetchTransportError
	}
	switch {
	case status == http.StatusOK:
		return FetchSuccess
	case status == http.StatusTooManyRequests:
		return FetchRateLimited
	case status == http.StatusNotFound:
		return FetchNotFound
	case status >= 400:
		return FetchHttpError
	default:
		return FetchTransportError
	}
}
