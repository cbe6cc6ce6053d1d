package crawler

import (
	"context"
	"fmt"
	"net/url"

	"soupbackup/oops"
)

// ResourceFetcher downloads a resource referenced from a post: an event's iCal feed or an asset.
type ResourceFetcher interface {
	Fetch(ctx context.Context, rawUrl string) ([]byte, error)
}

// RetryingFetcher applies the page backoff policy to nested fetches. Resources are requested
// without the session cookie since they live on other hosts.
type RetryingFetcher struct {
	Client  HttpClient
	Backoff *Backoff
	Logger  Logger
}

func (f *RetryingFetcher) Fetch(ctx context.Context, rawUrl string) ([]byte, error) {
	uri, err := url.Parse(rawUrl)
	if err != nil {
		return nil, oops.Wrapf(fmt.Errorf("%w: %w", ErrResourceFetch, err), "parse %q", rawUrl)
	}

	attempt := 1
	for {
		resp, err := f.Client.Request(ctx, uri, nil, f.Logger)
		if err != nil {
			return nil, err
		}
		outcome := ClassifyResponse(resp)
		if outcome == FetchSuccess {
			return resp.Body, nil
		}
		if !outcome.IsTransient() {
			return nil, oops.Newf("%w: %s (%s, code %s)", ErrResourceFetch, rawUrl, outcome, resp.Code)
		}
		if f.Backoff.IsExhausted(attempt) {
			return nil, oops.Newf(
				"%w: %s (%s after %d attempts)", ErrResourceFetch, rawUrl, outcome, attempt,
			)
		}
		f.Logger.Warn(
			"Resource %s: %s (code %s), backing off %v", rawUrl, outcome, resp.Code, f.Backoff.Delay(attempt),
		)
		attempt, err = f.Backoff.Wait(ctx, attempt)
		if err != nil {
			return nil, err
		}
	}
}
