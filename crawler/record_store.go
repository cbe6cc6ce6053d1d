package crawler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"soupbackup/oops"

	"github.com/goccy/go-json"
)

type WriteResult int

const (
	RecordWritten WriteResult = iota
	RecordExists
	RecordRepaired
)

func (r WriteResult) String() string {
	switch r {
	case RecordWritten:
		return "written"
	case RecordExists:
		return "exists"
	case RecordRepaired:
		return "repaired"
	default:
		panic("Unknown write result")
	}
}

const unknownYearDir = "unknown"

// RecordStore keeps one JSON file per post. A file at the post's path that parses as a record is
// never touched again; anything else found there is a leftover of an interrupted write and gets
// replaced.
type RecordStore struct {
	PostsDir string
	Logger   Logger
}

func NewRecordStore(backupDir string, logger Logger) *RecordStore {
	return &RecordStore{
		PostsDir: filepath.Join(backupDir, "posts"),
		Logger:   logger,
	}
}

// Path is <posts>/<year|unknown>/[<time>-]<type>-<id>.json.
func (s *RecordStore) Path(post *Post) string {
	yearDir := unknownYearDir
	timePrefix := ""
	if post.Timestamp != nil {
		yearDir = strconv.Itoa(post.Timestamp.Year())
		timePrefix = post.Timestamp.Format(PostTimeLayout) + "-"
	}
	filename := fmt.Sprintf("%s%s-%s.json", timePrefix, post.Type, post.Id)
	return filepath.Join(s.PostsDir, yearDir, filename)
}

// IsSafeNamePart reports whether an id or type can go into a record file name without the name
// leaving its year directory.
func IsSafeNamePart(part string) bool {
	if part == "" || part == "." || part == ".." {
		return false
	}
	return !strings.ContainsAny(part, "/\\\x00")
}

func (s *RecordStore) Write(post *Post) (string, WriteResult, error) {
	if post.Id == "" || post.Type == "" {
		return "", RecordWritten, oops.Newf("%w: post without id or type", ErrMalformedPost)
	}
	if !IsSafeNamePart(post.Id) || !IsSafeNamePart(post.Type) {
		return "", RecordWritten, oops.Newf(
			"%w: unsafe id %q or type %q", ErrMalformedPost, post.Id, post.Type,
		)
	}
	recordPath := s.Path(post)
	relPath, err := filepath.Rel(s.PostsDir, recordPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", RecordWritten, oops.Newf(
			"%w: record path %s is outside %s", ErrMalformedPost, recordPath, s.PostsDir,
		)
	}
	dir := filepath.Dir(recordPath)

	result := RecordWritten
	existing, err := os.ReadFile(recordPath)
	if err == nil {
		if IsValidRecord(existing) {
			return recordPath, RecordExists, nil
		}
		s.Logger.Warn("Overwriting invalid record %s", recordPath)
		result = RecordRepaired
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", RecordWritten, oops.Wrap(err)
	}

	data, err := json.Marshal(post)
	if err != nil {
		return "", RecordWritten, oops.Wrapf(err, "serialize post %s", post.Id)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", RecordWritten, oops.Wrap(err)
	}
	tempFile, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return "", RecordWritten, oops.Wrap(err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	_, err = tempFile.Write(data)
	if err == nil {
		err = tempFile.Sync()
	}
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", RecordWritten, oops.Wrap(err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		return "", RecordWritten, oops.Wrap(err)
	}

	if result == RecordRepaired {
		if err := os.Rename(tempPath, recordPath); err != nil {
			return "", RecordWritten, oops.Wrap(err)
		}
		return recordPath, result, nil
	}

	// Linking fails instead of replacing when another writer got there first.
	if err := os.Link(tempPath, recordPath); errors.Is(err, fs.ErrExist) {
		return recordPath, RecordExists, nil
	} else if err != nil {
		return "", RecordWritten, oops.Wrap(err)
	}
	return recordPath, result, nil
}

type storedRecord struct {
	Id   string `json:"id"`
	Type string `json:"type"`
}

// IsValidRecord tells a complete record apart from a truncated or foreign file.
func IsValidRecord(data []byte) bool {
	var record storedRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return false
	}
	return record.Id != "" && record.Type != ""
}
