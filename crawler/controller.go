package crawler

import (
	"context"
	"net/url"
	"strings"

	"soupbackup/oops"
)

// Target is one soup being backed up.
type Target struct {
	Name      string
	RootUrl   string
	BackupDir string
}

func NewTarget(name string, rootUrl string, backupDir string) Target {
	return Target{
		Name:      name,
		RootUrl:   strings.TrimSuffix(rootUrl, "/"),
		BackupDir: backupDir,
	}
}

func (t Target) PageUrl(cursor string) string {
	if cursor == "" {
		return t.RootUrl
	}
	return t.RootUrl + "/since/" + cursor
}

// NormalizeCursor additionally accepts a full page url of this target.
func (t Target) NormalizeCursor(raw string) string {
	return NormalizeCursor(strings.TrimPrefix(strings.TrimSpace(raw), t.RootUrl))
}

type ControllerState int

const (
	StateFetching ControllerState = iota
	StateBackoff
	StateDone
	StateFailedNotFound
	StateFailedGaveUp
)

func (s ControllerState) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StateBackoff:
		return "BACKOFF"
	case StateDone:
		return "DONE"
	case StateFailedNotFound:
		return "FAILED_NOT_FOUND"
	case StateFailedGaveUp:
		return "FAILED_GAVE_UP"
	default:
		panic("Unknown controller state")
	}
}

// CrawlState is the resumable position of one run. Attempt counts consecutive fetch failures of the
// current url and resets on every successful fetch. Anomalies counts consecutive successful fetches
// whose page had no pagination marker, so that such a page can't be retried forever.
type CrawlState struct {
	Cursor    string
	Attempt   int
	Anomalies int
}

// Journal is told about progress that is already durable on disk.
type Journal interface {
	PageDone(ctx context.Context, targetName string, nextCursor string, isFeedDone bool) error
	PostSaved(ctx context.Context, targetName string, post *Post, path string, result WriteResult) error
}

type CrawlResult struct {
	State      ControllerState
	CrawlState CrawlState
	Fetches    int
	Stats      *CrawlStats
}

type Controller struct {
	Target       Target
	Client       HttpClient
	MaybeCookie  *string
	Backoff      *Backoff
	MaybeJournal Journal
	Logger       Logger

	query     DocumentQuery
	extractor *Extractor
	assets    *AssetResolver
	store     *RecordStore
}

func NewController(
	target Target, client HttpClient, maybeCookie *string, backoff *Backoff, maybeJournal Journal,
	logger Logger,
) *Controller {
	query := NewXPathQuery()
	resources := &RetryingFetcher{
		Client:  client,
		Backoff: backoff,
		Logger:  logger,
	}
	return &Controller{
		Target:       target,
		Client:       client,
		MaybeCookie:  maybeCookie,
		Backoff:      backoff,
		MaybeJournal: maybeJournal,
		Logger:       logger,
		query:        query,
		extractor: &Extractor{
			Query:     query,
			Resources: resources,
			Logger:    logger,
		},
		assets: NewAssetResolver(query, resources, target.BackupDir, logger),
		store:  NewRecordStore(target.BackupDir, logger),
	}
}

// Run pages through the feed starting at startCursor (empty for the feed root) until the end of the
// feed or a 404. Running out of attempts returns ErrGaveUp along with the result.
func (c *Controller) Run(ctx context.Context, startCursor string) (*CrawlResult, error) {
	result := &CrawlResult{
		State: StateFetching,
		CrawlState: CrawlState{
			Cursor:    c.Target.NormalizeCursor(startCursor),
			Attempt:   1,
			Anomalies: 0,
		},
		Fetches: 0,
		Stats:   NewCrawlStats(),
	}
	c.Logger.Info("Backup %s into %s", c.Target.RootUrl, c.Target.BackupDir)

	var backoffReason string
	for {
		switch result.State {
		case StateFetching:
			nextState, reason, err := c.fetchStep(ctx, result)
			if err != nil {
				return result, err
			}
			result.State = nextState
			backoffReason = reason
		case StateBackoff:
			state := &result.CrawlState
			if c.Backoff.IsExhausted(state.Attempt) || c.Backoff.IsExhausted(state.Anomalies) {
				result.State = StateFailedGaveUp
				c.Logger.Error(
					"%s at %s, giving up after %d attempts", backoffReason,
					c.Target.PageUrl(state.Cursor), c.Backoff.MaxAttempts,
				)
				return result, oops.Newf("%w: %s: %s", ErrGaveUp, c.Target.PageUrl(state.Cursor), backoffReason)
			}
			c.Logger.Warn("%s, backing off %v...", backoffReason, c.Backoff.Delay(state.Attempt))
			nextAttempt, err := c.Backoff.Wait(ctx, state.Attempt)
			if err != nil {
				return result, err
			}
			state.Attempt = nextAttempt
			result.State = StateFetching
		case StateDone:
			c.Logger.Info("No next page, backup of %s done: %s", c.Target.Name, result.Stats)
			return result, nil
		case StateFailedNotFound:
			c.Logger.Warn("Page not found: %s", c.Target.PageUrl(result.CrawlState.Cursor))
			return result, nil
		default:
			panic("Unexpected controller state")
		}
	}
}

// fetchStep performs one FETCHING transition and returns the next state, with the reason when
// that state is BACKOFF.
func (c *Controller) fetchStep(ctx context.Context, result *CrawlResult) (ControllerState, string, error) {
	state := &result.CrawlState
	pageUrl := c.Target.PageUrl(state.Cursor)
	uri, err := url.Parse(pageUrl)
	if err != nil {
		return StateFetching, "", oops.Wrapf(err, "page url %q", pageUrl)
	}

	c.Logger.Info("Get: %s", pageUrl)
	resp, err := c.Client.Request(ctx, uri, c.MaybeCookie, c.Logger)
	if err != nil {
		return StateFetching, "", err
	}
	result.Fetches++

	outcome := ClassifyResponse(resp)
	switch outcome {
	case FetchSuccess:
	case FetchNotFound:
		return StateFailedNotFound, "", nil
	case FetchRateLimited:
		return StateBackoff, "Rate-limited", nil
	case FetchHttpError:
		return StateBackoff, "Received " + resp.Code + " status code", nil
	case FetchTransportError:
		return StateBackoff, "Connection error (" + resp.Code + ")", nil
	default:
		panic("Unexpected fetch outcome")
	}

	state.Attempt = 1
	result.Stats.PagesFetched++
	page, err := ParsePage(resp.Body, resp.MaybeContentType, uri)
	if err != nil {
		state.Anomalies++
		return StateBackoff, "Couldn't parse page: " + err.Error(), nil
	}

	cursor := FindNextCursor(page, c.query)
	switch cursor.Kind {
	case CursorNotFound:
		state.Anomalies++
		return StateBackoff, "Could not find 'next' endless-scrolling link", nil
	case CursorFound, CursorEndOfFeed:
	default:
		panic("Unexpected cursor kind")
	}
	state.Anomalies = 0

	if err := c.processPosts(ctx, page, result.Stats); err != nil {
		return StateFetching, "", err
	}

	isFeedDone := cursor.Kind == CursorEndOfFeed
	if c.MaybeJournal != nil {
		err := c.MaybeJournal.PageDone(ctx, c.Target.Name, cursor.Cursor, isFeedDone)
		if err != nil {
			c.Logger.Warn("Couldn't record checkpoint: %v", err)
		}
	}
	if isFeedDone {
		return StateDone, "", nil
	}
	state.Cursor = cursor.Cursor
	c.Logger.Info("Next batch of posts: %s", c.Target.PageUrl(state.Cursor))
	return StateFetching, "", nil
}

func (c *Controller) processPosts(ctx context.Context, page *Page, stats *CrawlStats) error {
	postResults := c.extractor.ExtractPosts(ctx, page)
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, postResult := range postResults {
		if postResult.Err != nil {
			c.Logger.Error("Skipping post: %v", postResult.Err)
			stats.PostsFailed++
			continue
		}
		post := postResult.Post

		assets, counts, err := c.assets.Resolve(ctx, postResult.Node, page.FetchUri)
		stats.addAssets(counts)
		if err != nil {
			return err
		}
		post.Assets = assets

		recordPath, writeResult, err := c.store.Write(post)
		if err != nil {
			return err
		}
		stats.addPost(post.Type, writeResult)

		if c.MaybeJournal != nil {
			err := c.MaybeJournal.PostSaved(ctx, c.Target.Name, post, recordPath, writeResult)
			if err != nil {
				c.Logger.Warn("Couldn't journal post %s: %v", post.Id, err)
			}
		}
	}
	return nil
}
