package main

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/jgoulah/smarthubscraper/internal/config"
	"github.com/jgoulah/smarthubscraper/internal/database"
	"github.com/jgoulah/smarthubscraper/internal/logger"
	"github.com/jgoulah/smarthubscraper/internal/smarthub"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "smarthubscraper",
	Short: "Scrape electricity usage from a SmartHub customer portal",
	Long: `smarthubscraper logs in to a SmartHub utility portal, scrapes the current
usage reading from the usage chart, and publishes it to Home Assistant.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "poll log database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads and validates the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", getConfigPath(), err)
	}
	return cfg, nil
}

// newLogger builds the logger from config and the --log-level flag
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logger.New(level, cfg.LogFormat)
}

// newClient creates the portal client; the HTTP client, its timeout and its
// cookie jar are owned here, not by the portal client
func newClient(cfg *config.Config, log *zap.Logger) (*smarthub.UsageClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	httpClient := &http.Client{Timeout: cfg.GetTimeout(), Jar: jar}
	return smarthub.New(httpClient,
		cfg.Portal.Username,
		cfg.Portal.Password,
		cfg.Portal.LoginURL,
		cfg.Portal.UsageURL,
		smarthub.WithLogger(log.Named("smarthub")),
	), nil
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}
