package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDownloadDir     = "~/downloads/squeeze"
	defaultLogDir          = "~/.local/share/squeeze/logs"
	defaultServerBaseURL   = "http://127.0.0.1:5000"
	defaultRequestTimeout  = 10
	defaultUploadTimeout   = 300
	defaultDownloadTimeout = 600
	defaultPollInterval    = 2
	defaultPollTimeout     = 1800
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "squeeze")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/squeeze"
	}
	return filepath.Join(home, ".cache", "squeeze")
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:    defaultCacheDir(),
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
		},
		Server: Server{
			BaseURL:         defaultServerBaseURL,
			RequestTimeout:  defaultRequestTimeout,
			UploadTimeout:   defaultUploadTimeout,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Workflow: Workflow{
			PollInterval:        defaultPollInterval,
			PollTimeout:         defaultPollTimeout,
			DeleteAfterDownload: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
