package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent poll cycles",
	Long:  `Displays the poll log recorded by 'watch': when each cycle ran, its outcome, and the reading if one was obtained.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of cycles to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	polls, err := db.ListPolls(historyLimit)
	if err != nil {
		return fmt.Errorf("listing poll log: %w", err)
	}

	if len(polls) == 0 {
		fmt.Println("No poll cycles recorded")
		return nil
	}

	fmt.Println("--------------------------------------------------------------------")
	fmt.Printf("%-20s  %-16s  %-16s  %6s  %10s\n", "Polled", "", "Outcome", "Status", "kWh")
	fmt.Println("--------------------------------------------------------------------")

	var ok int
	for _, p := range polls {
		usage := "-"
		if p.Usage != nil {
			usage = fmt.Sprintf("%.2f", *p.Usage)
			ok++
		}
		status := "-"
		if p.StatusCode != 0 {
			status = fmt.Sprintf("%d", p.StatusCode)
		}
		fmt.Printf("%-20s  %-16s  %-16s  %6s  %10s\n",
			p.PolledAt.Local().Format("2006-01-02 15:04:05"),
			humanize.Time(p.PolledAt),
			p.Outcome,
			status,
			usage,
		)
		if p.Detail != "" && p.Usage == nil {
			fmt.Printf("    %s\n", p.Detail)
		}
	}

	fmt.Println("--------------------------------------------------------------------")
	fmt.Printf("%d cycle(s), %d with a reading\n", len(polls), ok)
	return nil
}
