package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/smarthubscraper/internal/scraper"
	"github.com/jgoulah/smarthubscraper/internal/smarthub"
)

var (
	captureVisible bool
	captureOutput  string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Render the usage page in a browser and save its HTML",
	Long: `Logs in, loads the usage page in headless Chrome with the session cookies,
and saves the rendered HTML. Then runs the tooltip extractor against it so you
can see whether the portal markup still matches.

Flags:
  --visible    Show the browser window
  --output     Save HTML to this file (default usage.html)`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().BoolVar(&captureVisible, "visible", false, "Show browser window")
	captureCmd.Flags().StringVar(&captureOutput, "output", "usage.html", "Save HTML to this file")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
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
	if err := client.Authenticate(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("Rendering %s...\n", cfg.Portal.UsageURL)
	rendered, err := scraper.RenderPage(cmd.Context(), cfg.Portal.UsageURL, client.Cookies(), scraper.RenderOptions{
		Visible: captureVisible,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(captureOutput, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("writing HTML: %w", err)
	}
	fmt.Printf("✓ Saved %s of HTML to %s\n", humanize.Bytes(uint64(len(rendered))), captureOutput)

	fmt.Printf("Occurrences of %q in page: %d\n", smarthub.TooltipClass, strings.Count(rendered, smarthub.TooltipClass))
	usage, err := smarthub.ParseUsage(strings.NewReader(rendered))
	if err != nil {
		fmt.Printf("⚠ Extractor found no usage: %v\n", err)
		return nil
	}
	fmt.Printf("✓ Extractor reads %.2f kWh\n", usage)
	return nil
}
