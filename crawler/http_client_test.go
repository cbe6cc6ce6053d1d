package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"soupbackup/oops/oopstest"

	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	type Test struct {
		code     string
		expected FetchOutcome
	}

	tests := []Test{
		{code: "200", expected: FetchSuccess},
		{code: "429", expected: FetchRateLimited},
		{code: "404", expected: FetchNotFound},
		{code: "403", expected: FetchHttpError},
		{code: "500", expected: FetchHttpError},
		{code: "503", expected: FetchHttpError},
		{code: "204", expected: FetchTransportError},
		{code: "301", expected: FetchTransportError},
		{code: "Timeout", expected: FetchTransportError},
		{code: "SSLError", expected: FetchTransportError},
		{code: "Error", expected: FetchTransportError},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			resp := &HttpResponse{Code: tc.code, MaybeContentType: nil, Body: nil}
			require.Equal(t, tc.expected, ClassifyResponse(resp))
		})
	}
}

func TestFetchOutcomeIsTransient(t *testing.T) {
	require.False(t, FetchSuccess.IsTransient())
	require.False(t, FetchNotFound.IsTransient())
	require.True(t, FetchRateLimited.IsTransient())
	require.True(t, FetchHttpError.IsTransient())
	require.True(t, FetchTransportError.IsTransient())
}

func TestHttpClientSendsSessionCookie(t *testing.T) {
	var cookies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil {
			cookies = append(cookies, cookie.Value)
		} else {
			cookies = append(cookies, "")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()
	uri, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := NewHttpClientImpl(0)
	session := "abc123"

	resp, err := client.Request(context.Background(), uri, &session, NewDummyLogger())
	oopstest.RequireNoError(t, err)
	_, err = client.Request(context.Background(), uri, nil, NewDummyLogger())
	oopstest.RequireNoError(t, err)

	require.Equal(t, "200", resp.Code)
	require.NotNil(t, resp.MaybeContentType)
	require.Equal(t, "text/html; charset=utf-8", *resp.MaybeContentType)
	require.Equal(t, "<html></html>", string(resp.Body))
	require.Equal(t, []string{"abc123", ""}, cookies)
}

func TestHttpClientReportsStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	uri, err := url.Parse(server.URL)
	require.NoError(t, err)

	resp, err := NewHttpClientImpl(100).Request(context.Background(), uri, nil, NewDummyLogger())
	oopstest.RequireNoError(t, err)

	require.Equal(t, "429", resp.Code)
	require.Equal(t, FetchRateLimited, ClassifyResponse(resp))
}

func TestHttpClientReportsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	uri, err := url.Parse(server.URL)
	require.NoError(t, err)
	server.Close()

	resp, err := NewHttpClientImpl(0).Request(context.Background(), uri, nil, NewDummyLogger())
	oopstest.RequireNoError(t, err)

	require.Equal(t, FetchTransportError, ClassifyResponse(resp))
}

func TestHttpClientReturnsCancellation(t *testing.T) {
	uri, err := url.Parse(testRootUrl)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewHttpClientImpl(0).Request(ctx, uri, nil, NewDummyLogger())

	require.ErrorIs(t, err, context.Canceled)
}
