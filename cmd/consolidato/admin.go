package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	statsNamespace    string
	auditsNamespace   string
	auditsLimit       int
	rollbackNamespace string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize one namespace of the knowledge store",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close(cmd.Context())

		stats, err := client.Stats(cmd.Context(), statsNamespace)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var auditsCmd = &cobra.Command{
	Use:   "audits",
	Short: "List recent consolidation decisions for a namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close(cmd.Context())

		audits, err := client.Audits(cmd.Context(), auditsNamespace, auditsLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(audits)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [audit-id]",
	Short: "Restore the pre-merge entity state from a merge audit record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close(cmd.Context())

		if err := client.Rollback(cmd.Context(), rollbackNamespace, args[0]); err != nil {
			return err
		}
		fmt.Printf("rolled back %s\n", args[0])
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsNamespace, "namespace", "n", "", "namespace (required)")
	statsCmd.MarkFlagRequired("namespace")

	auditsCmd.Flags().StringVarP(&auditsNamespace, "namespace", "n", "", "namespace (required)")
	auditsCmd.Flags().IntVar(&auditsLimit, "limit", 50, "maximum records")
	auditsCmd.MarkFlagRequired("namespace")

	rollbackCmd.Flags().StringVarP(&rollbackNamespace, "namespace", "n", "", "namespace (required)")
	rollbackCmd.MarkFlagRequired("namespace")

	rootCmd.AddCommand(statsCmd, auditsCmd, rollbackCmd)
}
