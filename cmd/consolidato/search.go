package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soundprediction/consolidato/pkg/retrieval"
)

var (
	searchNamespace    string
	searchTopK         int
	searchVectorWeight float64
	searchGraphWeight  float64
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Hybrid search over the consolidated knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchNamespace, "namespace", "n", "", "namespace to search (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 10, "maximum results")
	searchCmd.Flags().Float64Var(&searchVectorWeight, "vector-weight", 0.5, "weight of the vector branch")
	searchCmd.Flags().Float64Var(&searchGraphWeight, "graph-weight", 0.5, "weight of the graph branch")
	searchCmd.MarkFlagRequired("namespace")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())

	result, err := client.Search(cmd.Context(), retrieval.Query{
		Text:         strings.Join(args, " "),
		Namespace:    searchNamespace,
		TopK:         searchTopK,
		VectorWeight: searchVectorWeight,
		GraphWeight:  searchGraphWeight,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
