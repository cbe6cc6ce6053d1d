package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"soupbackup/oops"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BackupDir         string        `yaml:"backup_dir"`
	RootUrlTemplate   string        `yaml:"root_url_template"`
	SessionCookie     string        `yaml:"session_cookie"`
	BackoffUnit       time.Duration `yaml:"backoff_unit"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Parallel          int           `yaml:"parallel"`
	JournalPath       string        `yaml:"journal_path"`
	Mirror            MirrorConfig  `yaml:"mirror"`
}

type MirrorConfig struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

const DefaultRootUrlTemplate = "https://%s.soup.io"
const DefaultBackoffUnit = 5 * time.Second
const DefaultMaxAttempts = 25
const JournalFileName = ".soupbackup.db"

func Default() Config {
	backupDir, err := os.Getwd()
	if err != nil {
		backupDir = "."
	}
	return Config{
		BackupDir:         backupDir,
		RootUrlTemplate:   DefaultRootUrlTemplate,
		SessionCookie:     "",
		BackoffUnit:       DefaultBackoffUnit,
		MaxAttempts:       DefaultMaxAttempts,
		RequestsPerSecond: 0,
		Parallel:          1,
		JournalPath:       "",
		Mirror: MirrorConfig{
			Bucket:    "",
			Region:    "us-west-2",
			Prefix:    "",
			Endpoint:  "",
			AccessKey: "",
			SecretKey: "",
		},
	}
}

// Load reads the optional YAML file on top of the defaults, then applies environment overrides.
// A missing file at an empty path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, oops.Newf("config file not found: %s", path)
		} else if err != nil {
			return Config{}, oops.Wrap(err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, oops.Wrapf(err, "parse %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupEnvFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookupEnv lookupEnvFunc) error {
	if value, ok := lookupEnv("SOUPBACKUP_DIR"); ok {
		c.BackupDir = value
	}
	if value, ok := lookupEnv("SOUPBACKUP_SESSION_COOKIE"); ok {
		c.SessionCookie = value
	}
	if value, ok := lookupEnv("SOUPBACKUP_MAX_ATTEMPTS"); ok {
		maxAttempts, err := strconv.Atoi(value)
		if err != nil {
			return oops.Wrapf(err, "SOUPBACKUP_MAX_ATTEMPTS")
		}
		c.MaxAttempts = maxAttempts
	}
	if value, ok := lookupEnv("AWS_ACCESS_KEY_ID"); ok && c.Mirror.AccessKey == "" {
		c.Mirror.AccessKey = value
	}
	if value, ok := lookupEnv("AWS_SECRET_ACCESS_KEY"); ok && c.Mirror.SecretKey == "" {
		c.Mirror.SecretKey = value
	}
	return nil
}

func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return oops.New("backup_dir is empty")
	}
	if strings.Count(c.RootUrlTemplate, "%s") != 1 {
		return oops.Newf("root_url_template must contain exactly one %%s: %q", c.RootUrlTemplate)
	}
	if c.BackoffUnit < 0 {
		return oops.Newf("backoff_unit is negative: %v", c.BackoffUnit)
	}
	if c.MaxAttempts < 0 {
		return oops.Newf("max_attempts is negative: %d", c.MaxAttempts)
	}
	if c.RequestsPerSecond < 0 {
		return oops.Newf("requests_per_second is negative: %v", c.RequestsPerSecond)
	}
	if c.Parallel < 1 {
		return oops.Newf("parallel must be at least 1: %d", c.Parallel)
	}
	return nil
}

func (c *Config) RootUrl(soup string) string {
	return fmt.Sprintf(c.RootUrlTemplate, soup)
}

// ResolvedJournalPath places the journal inside the backup root unless configured otherwise.
func (c *Config) ResolvedJournalPath() string {
	if c.JournalPath != "" {
		return c.JournalPath
	}
	return filepath.Join(c.BackupDir, JournalFileName)
}

func (c MirrorConfig) IsConfigured() bool {
	return c.Bucket != ""
}
