package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/smarthubscraper/internal/publisher"
)

var (
	fetchPublish bool
	fetchJSON    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the current usage reading",
	Long: `Logs in to the SmartHub portal, scrapes the current usage reading, and prints it.
With --publish the reading is also sent to Home Assistant.

"No data" means the usage page could not be read this time (bad status,
network error, or the tooltip was missing); it is not a failure.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchPublish, "publish", false, "Publish the reading to Home Assistant")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print the reading as JSON")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	reading, err := client.FetchUsage(cmd.Context())
	if err != nil {
		return err
	}

	if reading == nil {
		if fetchJSON {
			fmt.Println("null")
		} else {
			fmt.Println("No data available this cycle")
		}
		return nil
	}

	if fetchJSON {
		if err := json.NewEncoder(os.Stdout).Encode(reading); err != nil {
			return fmt.Errorf("encoding reading: %w", err)
		}
	} else {
		fmt.Printf("Current usage: %.2f kWh\n", reading.Usage)
	}

	if !fetchPublish {
		return nil
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant, log.Named("publisher"))
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	if err := pub.Publish(cmd.Context(), *reading, time.Now()); err != nil {
		return fmt.Errorf("publishing reading: %w", err)
	}
	if !fetchJSON {
		fmt.Println("✓ Published")
	}
	return nil
}
