package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	OutputDir  string
	InboxDir   string
	ArchiveDir string
	RawMailDir string
	FMCodePath string

	ConfidenceThreshold  float64
	NotExceedReported    bool
	ExhaustiveLimit      int
	MaxPrices            int
	NearMisses           int
	SkipSingleUnit       bool
	IncludePriceVariants bool
	BundleRemarks        bool
	BatchWorkers         int

	WatchSource      string
	WatchLabel       string
	WatchIntervalSec int
	WatchFetchMax    int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "watson.db")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		InboxDir:   getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		ArchiveDir: getEnv("ARCHIVE_DIR", filepath.Join(cwd, "data", "archive")),
		RawMailDir: getEnv("RAW_MAIL_DIR", filepath.Join(cwd, "data", "raw")),
		FMCodePath: getEnv("FMCODE_PATH", ""),

		ConfidenceThreshold:  getEnvFloat("CONFIDENCE_THRESHOLD", 0.95),
		NotExceedReported:    getEnvBool("NOT_EXCEED_REPORTED", false),
		ExhaustiveLimit:      getEnvInt("EXHAUSTIVE_LIMIT", 500),
		MaxPrices:            getEnvInt("MAX_PRICES", 10),
		NearMisses:           getEnvInt("NEAR_MISSES", 3),
		SkipSingleUnit:       getEnvBool("SKIP_SINGLE_UNIT", true),
		IncludePriceVariants: getEnvBool("INCLUDE_PRICE_VARIANTS", false),
		BundleRemarks:        getEnvBool("BUNDLE_REMARKS", false),
		BatchWorkers:         getEnvInt("BATCH_WORKERS", 4),

		WatchSource:      getEnv("WATCH_SOURCE", "folder"),
		WatchLabel:       getEnv("WATCH_LABEL", "INBOX"),
		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 60),
		WatchFetchMax:    getEnvInt("WATCH_FETCH_MAX", 20),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),
	}

	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0,1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.WatchIntervalSec < 1 {
		cfg.WatchIntervalSec = 1
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
