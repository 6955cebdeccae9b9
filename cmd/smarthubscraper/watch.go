package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jgoulah/smarthubscraper/internal/poller"
	"github.com/jgoulah/smarthubscraper/internal/publisher"
)

var watchNoPublish bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the portal and publish readings to Home Assistant",
	Long: `Polls the SmartHub portal every poll_interval, records each cycle in the
poll log, and publishes readings to Home Assistant over its HTTP API and/or MQTT.
Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoPublish, "no-publish", false, "Only record poll cycles, do not publish")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var sink poller.Publisher
	if !watchNoPublish {
		pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant, log.Named("publisher"))
		if err != nil {
			return fmt.Errorf("creating publisher: %w", err)
		}
		defer pub.Close()

		if pub.Enabled() {
			sink = pub
		} else {
			log.Warn("no publishing sink enabled in config, readings will only be recorded")
		}
	}

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	p := poller.New(client, db, sink, log.Named("poller"))

	interval := cfg.GetPollInterval()
	log.Info("watching usage",
		zap.String("usage_url", cfg.Portal.UsageURL),
		zap.Duration("interval", interval),
		zap.String("db", getDBPath()),
	)

	if err := p.Run(cmd.Context(), interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
