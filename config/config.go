package config

import (
	"fmt"
	"math"

	env "github.com/Netflix/go-env"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the host settings. Every field can come from the environment
// or an optional .env file; command-line flags override both.
type Config struct {
	ListenAddr     string `env:"LOCALSHARE_LISTEN,default=:3000"`
	LogLevel       string `env:"LOCALSHARE_LOG_LEVEL,default=info"`
	StorageType    string `env:"STORAGE_TYPE,default=filesystem"`
	StoragePath    string `env:"LOCAL_STORAGE_PATH,default=./uploads"`
	MaxUploadFiles int    `env:"MAX_UPLOAD_FILES,default=100"`
	MaxFileSize    string `env:"MAX_FILE_SIZE"`
	SweepOnStart   bool   `env:"SWEEP_ON_START,default=true"`
	AdvertiseHost  string `env:"ADVERTISE_HOST"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	return FromEnviron()
}

func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxUploadFiles < 1 {
		return fmt.Errorf("MAX_UPLOAD_FILES must be positive, got %d", c.MaxUploadFiles)
	}
	if _, err := c.MaxFileSizeBytes(); err != nil {
		return err
	}
	switch c.StorageType {
	case "filesystem", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	return nil
}

// MaxFileSizeBytes parses MaxFileSize ("512MB", "2GiB"). Empty means no limit.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	if c.MaxFileSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_FILE_SIZE %q: %w", c.MaxFileSize, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid MAX_FILE_SIZE %q: exceeds %d bytes", c.MaxFileSize, int64(math.MaxInt64))
	}
	return int64(n), nil
}
