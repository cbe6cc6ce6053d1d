package crawler

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type CrawlStats struct {
	PagesFetched     int
	PostsWritten     int
	PostsExisting    int
	PostsRepaired    int
	PostsFailed      int
	AssetsDownloaded int
	AssetsSkipped    int
	AssetsFailed     int
	// Post counts per type, in the order types were first seen.
	PostsByType *orderedmap.OrderedMap[string, int]
}

func NewCrawlStats() *CrawlStats {
	return &CrawlStats{
		PagesFetched:     0,
		PostsWritten:     0,
		PostsExisting:    0,
		PostsRepaired:    0,
		PostsFailed:      0,
		AssetsDownloaded: 0,
		AssetsSkipped:    0,
		AssetsFailed:     0,
		PostsByType:      orderedmap.New[string, int](),
	}
}

func (s *CrawlStats) addPost(postType string, result WriteResult) {
	switch result {
	case RecordWritten:
		s.PostsWritten++
	case RecordExists:
		s.PostsExisting++
	case RecordRepaired:
		s.PostsRepaired++
	}
	count, _ := s.PostsByType.Get(postType)
	s.PostsByType.Set(postType, count+1)
}

func (s *CrawlStats) addAssets(counts AssetCounts) {
	s.AssetsDownloaded += counts.Downloaded
	s.AssetsSkipped += counts.Skipped
	s.AssetsFailed += counts.Failed
}

func (s *CrawlStats) TotalPosts() int {
	return s.PostsWritten + s.PostsExisting + s.PostsRepaired
}

// TypesSummary renders "image=3 quote=1" in first-seen order.
func (s *CrawlStats) TypesSummary() string {
	var tokens []string
	for pair := s.PostsByType.Oldest(); pair != nil; pair = pair.Next() {
		tokens = append(tokens, fmt.Sprintf("%s=%d", pair.Key, pair.Value))
	}
	return strings.Join(tokens, " ")
}

func (s *CrawlStats) String() string {
	return fmt.Sprintf(
		"pages=%d posts=%d (new %d, existing %d, repaired %d, failed %d) assets=(new %d, existing %d, failed %d) types: %s",
		s.PagesFetched, s.TotalPosts(), s.PostsWritten, s.PostsExisting, s.PostsRepaired, s.PostsFailed,
		s.AssetsDownloaded, s.AssetsSkipped, s.AssetsFailed, s.TypesSummary(),
	)
}
