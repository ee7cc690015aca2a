package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var patternsRun bool

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List recognized patterns, highest priority first",
	RunE:  runPatterns,
}

func init() {
	patternsCmd.Flags().BoolVar(&patternsRun, "run", false, "force a recognition pass before listing")
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	if patternsRun {
		if _, err := client.Recognize(cmd.Context()); err != nil {
			return err
		}
	}

	patterns, err := client.Patterns(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(patterns)
}
