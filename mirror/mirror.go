// Package mirror copies a backup directory into an S3 bucket. Like the local tree, the bucket is
// only ever added to: objects already present with the same size are left alone.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"soupbackup/config"
	"soupbackup/oops"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3Client is the subset of *s3.Client the uploader needs.
type S3Client interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListMultipartUploads(
		ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options),
	) (*s3.ListMultipartUploadsOutput, error)
	AbortMultipartUpload(
		ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options),
	) (*s3.AbortMultipartUploadOutput, error)
	CreateMultipartUpload(
		ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options),
	) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(
		ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options),
	) (*s3.CompleteMultipartUploadOutput, error)
}

const DefaultMaxPartSize int64 = 50 * 1024 * 1024

// MirroredDirs are the parts of a backup that get uploaded. The journal is local state.
var MirroredDirs = []string{"posts", "assets"}

type Uploader struct {
	Client      S3Client
	Bucket      string
	Prefix      string
	MaxPartSize int64
	Logger      zerolog.Logger
}

type SyncStats struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

func NewUploader(ctx context.Context, cfg config.MirrorConfig, logger zerolog.Logger) (*Uploader, error) {
	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
			options.UsePathStyle = true
		}
	})
	return &Uploader{
		Client:      s3Client,
		Bucket:      cfg.Bucket,
		Prefix:      strings.Trim(cfg.Prefix, "/"),
		MaxPartSize: DefaultMaxPartSize,
		Logger:      logger,
	}, nil
}

func (u *Uploader) key(relPath string) string {
	key := filepath.ToSlash(relPath)
	if u.Prefix == "" {
		return key
	}
	return path.Join(u.Prefix, key)
}

func (u *Uploader) listPrefix() *string {
	if u.Prefix == "" {
		return nil
	}
	return aws.String(u.Prefix + "/")
}

func (u *Uploader) Sync(ctx context.Context, backupDir string) (SyncStats, error) {
	var stats SyncStats
	if err := u.abortIncompleteUploads(ctx); err != nil {
		return stats, err
	}

	remoteSizes, err := u.listRemote(ctx)
	if err != nil {
		return stats, err
	}
	u.Logger.Info().Msgf("S3 has %d objects under %q", len(remoteSizes), u.Prefix)

	localFiles, err := listLocal(backupDir)
	if err != nil {
		return stats, err
	}

	for _, file := range localFiles {
		key := u.key(file.relPath)
		if size, ok := remoteSizes[key]; ok && size == file.size {
			stats.Skipped++
			continue
		}
		if err := u.upload(ctx, filepath.Join(backupDir, file.relPath), key, file.size); err != nil {
			return stats, oops.Wrapf(err, "upload %s", key)
		}
		stats.Uploaded++
		stats.Bytes += file.size
	}
	u.Logger.Info().Msgf("Mirror done: %d uploaded (%d bytes), %d skipped", stats.Uploaded, stats.Bytes, stats.Skipped)
	return stats, nil
}

// abortIncompleteUploads pages through the multipart uploads left under the prefix by interrupted
// runs and aborts every one of them.
func (u *Uploader) abortIncompleteUploads(ctx context.Context) error {
	var keyMarker *string
	var uploadIdMarker *string
	abortedCount := 0
	for {
		//nolint:exhaustruct
		incompleteUploads, err := u.Client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
			Bucket:         aws.String(u.Bucket),
			Prefix:         u.listPrefix(),
			KeyMarker:      keyMarker,
			UploadIdMarker: uploadIdMarker,
		})
		if err != nil {
			return oops.Wrap(err)
		}
		if incompleteUploads.IsTruncated == nil {
			return oops.New("S3 incomplete uploads list has no truncation flag")
		}

		for _, incompleteUpload := range incompleteUploads.Uploads {
			//nolint:exhaustruct
			_, err := u.Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket:   aws.String(u.Bucket),
				Key:      incompleteUpload.Key,
				UploadId: incompleteUpload.UploadId,
			})
			if err != nil {
				return oops.Wrap(err)
			}
			abortedCount++
		}

		if !*incompleteUploads.IsTruncated {
			break
		}
		if incompleteUploads.NextKeyMarker == nil {
			return oops.Newf("S3 incomplete uploads list was truncated at %d without a marker", abortedCount)
		}
		keyMarker = incompleteUploads.NextKeyMarker
		uploadIdMarker = incompleteUploads.NextUploadIdMarker
	}

	if abortedCount > 0 {
		u.Logger.Info().Msgf("Aborted %d incomplete uploads", abortedCount)
	}
	return nil
}

func (u *Uploader) listRemote(ctx context.Context) (map[string]int64, error) {
	sizes := make(map[string]int64)
	//nolint:exhaustruct
	paginator := s3.NewListObjectsV2Paginator(u.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(u.Bucket),
		Prefix: u.listPrefix(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, oops.Wrap(err)
		}
		for _, object := range page.Contents {
			if object.Key == nil {
				u.Logger.Warn().Msg("S3 object key is null")
				continue
			}
			sizes[*object.Key] = aws.ToInt64(object.Size)
		}
	}
	return sizes, nil
}

type localFile struct {
	relPath string
	size    int64
}

// listLocal skips temp files of writes still in progress.
func listLocal(backupDir string) ([]localFile, error) {
	var files []localFile
	for _, dir := range MirroredDirs {
		root := filepath.Join(backupDir, dir)
		err := filepath.WalkDir(root, func(filePath string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			relPath, err := filepath.Rel(backupDir, filePath)
			if err != nil {
				return err
			}
			files = append(files, localFile{relPath: relPath, size: info.Size()})
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, oops.Wrap(err)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].relPath < files[j].relPath
	})
	return files, nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	if byExtension := mime.TypeByExtension(path.Ext(key)); byExtension != "" {
		return byExtension
	}
	return "application/octet-stream"
}

func (u *Uploader) upload(ctx context.Context, filePath string, key string, size int64) error {
	file, err := os.Open(filePath)
	if err != nil {
		return oops.Wrap(err)
	}
	defer file.Close()

	if size > u.MaxPartSize {
		return u.uploadMultipart(ctx, file, key, size)
	}

	//nolint:exhaustruct
	_, err = u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType(key)),
	})
	return oops.Wrap(err)
}

func (u *Uploader) uploadMultipart(ctx context.Context, file io.Reader, key string, size int64) error {
	//nolint:exhaustruct
	uploadOutput, err := u.Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return oops.Wrap(err)
	}

	buf := make([]byte, u.MaxPartSize)
	remaining := size
	var completedParts []types.CompletedPart
	var partNumber int32 = 1
	for remaining > 0 {
		partLength := u.MaxPartSize
		if remaining < partLength {
			partLength = remaining
		}
		actualPartLength, err := io.ReadFull(file, buf[:partLength])
		if err != nil {
			return oops.Wrap(err)
		}

		//nolint:exhaustruct
		uploadResult, err := u.Client.UploadPart(ctx, &s3.UploadPartInput{
			Body:       bytes.NewReader(buf[:actualPartLength]),
			Bucket:     uploadOutput.Bucket,
			Key:        uploadOutput.Key,
			PartNumber: aws.Int32(partNumber),
			UploadId:   uploadOutput.UploadId,
		})
		if err != nil {
			return oops.Wrap(err)
		}

		//nolint:exhaustruct
		completedParts = append(completedParts, types.CompletedPart{
			ETag:       uploadResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		remaining -= int64(actualPartLength)
		partNumber++
	}
	u.Logger.Info().Msgf("%s: uploaded %d parts", key, len(completedParts))

	//nolint:exhaustruct
	_, err = u.Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   uploadOutput.Bucket,
		Key:      uploadOutput.Key,
		UploadId: uploadOutput.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	return oops.Wrap(err)
}
