package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check the portal credentials",
	Long: `Logs in to the SmartHub portal with the configured username and password
and reports the session cookies that were issued. Nothing is saved.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Logging in to %s as %s...\n", cfg.Portal.LoginURL, cfg.Portal.Username)
	if err := client.Authenticate(cmd.Context()); err != nil {
		return err
	}

	names := make([]string, 0, len(client.Session()))
	for name := range client.Session() {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("⚠ Login returned 200 but no session cookies")
		return nil
	}
	fmt.Printf("✓ Login successful, %d session cookie(s): %s\n", len(names), strings.Join(names, ", "))
	return nil
}
