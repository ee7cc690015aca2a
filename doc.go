// Package consolidato provides an entity consolidation and hybrid retrieval
// engine for organizational knowledge.
//
// Consolidato ingests independently-extracted candidate facts about business
// concepts (systems, processes, pain points, and similar), converges repeated
// and conflicting assertions into one provenance-tracked knowledge base, and
// answers queries by fusing vector similarity search with graph traversal.
//
// # Basic Usage
//
// Create a client from configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := consolidato.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	// Consolidate one source document's extraction output.
//	result, err := client.ConsolidateSource(ctx, consolidato.Source{
//		Candidates: candidates,
//		Mentions:   mentions,
//	})
//
//	// Query the consolidated knowledge base.
//	found, err := client.Search(ctx, retrieval.Query{
//		Text:      "booking system complaints",
//		Namespace: "acme",
//		TopK:      10,
//	})
//
// Document parsing, chunking, and embedding generation happen upstream;
// candidates arrive with their embeddings already computed.
package consolidato
