package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/viant/corpusdedup/dedup"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Remove near-duplicate documents or chunks",
}

var dedupDocsCmd = &cobra.Command{
	Use:   "docs",
	Short: "MinHash/LSH deduplication of raw text files",
	Long: `Scan extracted_txt for *.txt files, detect near-duplicates with MinHash
signatures over token 3-grams and an LSH index, and copy every file into
either dedup_txt (kept) or dup_txt (duplicate), preserving its relative path.

The first file of a near-duplicate group in processing order is kept. Files
are processed in path order unless --shuffle is given, in which case the
order is shuffled with the configured seed.

Examples:
  corpusdedup dedup docs
  corpusdedup dedup docs --threshold 0.9 --shuffle`,
	Run: func(cmd *cobra.Command, args []string) {
		paths := cfg.Paths()
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if !cmd.Flags().Changed("threshold") {
			threshold = cfg.MinHash.Threshold
		}
		shuffle, _ := cmd.Flags().GetBool("shuffle")
		order := dedup.SortedOrder()
		if shuffle || cfg.MinHash.Shuffle {
			order = dedup.ShuffledOrder(cfg.Seed)
		}
		d, err := dedup.NewDocumentDeduper(dedup.DocumentOptions{
			Src:         paths.ExtractedText,
			UniqueDir:   paths.DedupText,
			DupDir:      paths.DupText,
			Threshold:   threshold,
			NumPerm:     cfg.MinHash.NumPerm,
			ShingleSize: cfg.MinHash.ShingleSize,
			Seed:        cfg.MinHash.Seed,
			Order:       order,
			Logger:      logger,
		})
		if err != nil {
			fail("%v", err)
		}
		stats, err := d.Run(context.Background())
		if err != nil {
			fail("%v", err)
		}
		ok("%d documents: %d unique, %d duplicates (%s order)", stats.Total, stats.Unique, stats.Duplicates, order.Name())
		if stats.Skipped > 0 {
			warn("%d unreadable documents skipped", stats.Skipped)
		}
		if stats.NoSignature > 0 {
			warn("%d documents too short to sketch were kept as unique", stats.NoSignature)
		}
	},
}

var dedupChunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Embedding-similarity deduplication of chunk batches",
	Long: `Embed every chunk in chunks_json, link chunks whose cosine similarity to one
of their k nearest neighbours reaches the threshold, and write one seeded
representative per cluster to chunks_deduped/deduped_NNN.json.

Neighbour searches are cached per batch under search_cache, so an
interrupted run resumes without searching again.`,
	Run: func(cmd *cobra.Command, args []string) {
		paths := cfg.Paths()
		ec := cfg.EmbeddingDedup
		enc, err := cfg.Encoder(ec.Model)
		if err != nil {
			fail("%v", err)
		}
		d, err := dedup.NewEmbeddingDeduper(dedup.EmbeddingOptions{
			Src:       paths.ChunksJSON,
			Dst:       paths.ChunksDeduped,
			CacheDir:  filepath.Join(paths.SearchCache, "dedup"),
			Encoder:   enc,
			Batch:     cfg.CorpusBatch(ec.Model),
			Threshold: ec.Threshold,
			K:         ec.K,
			BatchSize: ec.BatchSize,
			NewIndex:  annFactory(cfg),
			Seed:      cfg.Seed,
			Logger:    logger,
		})
		if err != nil {
			fail("%v", err)
		}
		stats, err := d.Run(context.Background())
		if err != nil {
			fail("%v", err)
		}
		ok("%d chunks: kept %d, removed %d (%d clusters)", stats.Chunks, stats.Kept, stats.Removed, stats.Clusters)
		if stats.SkippedFiles > 0 {
			warn("%d chunk files could not be read", stats.SkippedFiles)
		}
		if m := stats.Embedding.Missing(); m > 0 {
			warn("%d of %d chunks were not embedded and kept unclustered", m, stats.Embedding.Total)
		}
	},
}

func init() {
	dedupDocsCmd.Flags().Float64("threshold", 0.8, "Jaccard similarity threshold (default from config)")
	dedupDocsCmd.Flags().Bool("shuffle", false, "process documents in seeded random order")
	dedupCmd.AddCommand(dedupDocsCmd)
	dedupCmd.AddCommand(dedupChunksCmd)
	rootCmd.AddCommand(dedupCmd)
}
