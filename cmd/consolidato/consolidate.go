package main

import (
	"encoding/json"
	"fmt"
	"os"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"github.com/spf13/cobra"

	consolidato "github.com/soundprediction/consolidato"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [source files...]",
	Short: "Consolidate extraction output from one or more source documents",
	Long: `Reads source document files (JSON, one Source per file: namespace,
source_ref, candidates, mentions) and consolidates them into the knowledge
store. Files process concurrently, one worker per in-flight source.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConsolidate,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	sources := make([]consolidato.Source, 0, len(args))
	for _, path := range args {
		source, err := readSource(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sources = append(sources, *source)
	}

	results, errs := client.ConsolidateStream(cmd.Context(), sources)

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", args[i], err)
			continue
		}
		r := results[i]
		fmt.Printf("%s: %d resolutions, %d relationships, %d skipped\n",
			r.SourceRef, len(r.Resolutions), len(r.Relationships), r.SkippedCandidates)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(sources))
	}
	return nil
}

// readSource decodes one source file, repairing almost-JSON extraction
// output when the strict parse fails.
func readSource(path string) (*consolidato.Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var source consolidato.Source
	if err := json.Unmarshal(raw, &source); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return nil, fmt.Errorf("invalid source payload: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &source); err != nil {
			return nil, fmt.Errorf("source payload unrecoverable: %w", err)
		}
	}
	return &source, nil
}
