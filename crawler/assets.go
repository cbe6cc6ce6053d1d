package crawler

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"soupbackup/oops"

	"golang.org/x/net/html"
)

type AssetResolver struct {
	Query     DocumentQuery
	Resources ResourceFetcher
	AssetsDir string
	Logger    Logger
}

type AssetCounts struct {
	Downloaded int
	Skipped    int
	Failed     int
}

func NewAssetResolver(
	query DocumentQuery, resources ResourceFetcher, backupDir string, logger Logger,
) *AssetResolver {
	return &AssetResolver{
		Query:     query,
		Resources: resources,
		AssetsDir: filepath.Join(backupDir, "assets"),
		Logger:    logger,
	}
}

var imageContainerXPath = descendant("div.imagecontainer")
var lightboxXPath = descendant("a.lightbox")
var imgXPath = descendant("img")

// Resolve lists the post's image assets and downloads the ones not on disk yet. A failed download
// is logged and counted, the asset is still referenced so the next run retries it. Relative urls
// are fetched relative to fetchUri.
func (r *AssetResolver) Resolve(
	ctx context.Context, postNode *html.Node, fetchUri *url.URL,
) ([]Asset, AssetCounts, error) {
	assets := []Asset{}
	var counts AssetCounts
	for _, container := range r.Query.FindAll(postNode, imageContainerXPath) {
		var assetUrl string
		if lightbox := r.Query.FindOne(container, lightboxXPath); lightbox != nil {
			assetUrl, _ = r.Query.Attr(lightbox, "href")
		} else if img := r.Query.FindOne(container, imgXPath); img != nil {
			assetUrl, _ = r.Query.Attr(img, "src")
		}
		if assetUrl == "" {
			continue
		}

		filename := AssetFilename(assetUrl)
		if filename == "" {
			r.Logger.Warn("Asset %s: no file name in url", assetUrl)
			continue
		}
		asset := Asset{Url: assetUrl, Filename: filename}
		assets = append(assets, asset)

		assetPath := filepath.Join(r.AssetsDir, filename)
		if _, err := os.Stat(assetPath); err == nil {
			r.Logger.Info("Skip asset %s: file exists", assetUrl)
			counts.Skipped++
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return assets, counts, oops.Wrap(err)
		}

		fetchUrl, ok := ResolveLink(assetUrl, fetchUri, r.Logger)
		if !ok {
			r.Logger.Error("Asset %s: can't fetch this url", assetUrl)
			counts.Failed++
			continue
		}
		r.Logger.Info("Asset %s -> %s", fetchUrl, assetPath)
		body, err := r.Resources.Fetch(ctx, fetchUrl)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return assets, counts, ctxErr
		} else if errors.Is(err, ErrResourceFetch) {
			r.Logger.Error("Asset %s: %v", assetUrl, err)
			counts.Failed++
			continue
		} else if err != nil {
			return assets, counts, err
		}

		if err := writeFileAtomic(r.AssetsDir, assetPath, body); err != nil {
			return assets, counts, err
		}
		counts.Downloaded++
	}
	return assets, counts, nil
}

// AssetFilename is the last path segment of the url, percent-encoding kept as is. Assets sharing a
// tail segment map to the same file, which keeps compatibility with existing backups.
func AssetFilename(rawUrl string) string {
	var filename string
	if uri, err := url.Parse(rawUrl); err == nil {
		filename = path.Base(uri.EscapedPath())
	} else {
		segments := strings.Split(rawUrl, "/")
		filename = segments[len(segments)-1]
	}
	if filename == "/" || filename == "." || filename == ".." {
		return ""
	}
	return filename
}

// writeFileAtomic publishes data under finalPath only once it is complete on disk.
func writeFileAtomic(dir string, finalPath string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oops.Wrap(err)
	}
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return oops.Wrap(err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return oops.Wrap(err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return oops.Wrap(err)
	}
	if err := tempFile.Close(); err != nil {
		return oops.Wrap(err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		return oops.Wrap(err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return oops.Wrap(err)
	}
	return nil
}
