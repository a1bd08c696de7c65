package main

import (
	"github.com/spf13/cobra"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the ordered passage corpus",
}

var corpusBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Flatten chunk batches into corpus/ordered_corpus.json",
	Long: `Read every *.json batch in the source directory (chunks_deduped by default)
in file name order and write the trimmed, non-empty passages to
corpus/ordered_corpus.json. Row i of every corpus embedding is passage i,
so rebuilding the corpus requires rebuilding the indexes (index build --rebuild).`,
	Run: func(cmd *cobra.Command, args []string) {
		src, _ := cmd.Flags().GetString("src")
		m := corpusManager(cfg, src)
		passages, err := m.Build()
		if err != nil {
			fail("%v", err)
		}
		ok("%d passages written to %s", len(passages), m.Out)
	},
}

func init() {
	corpusBuildCmd.Flags().String("src", "", "directory of chunk batches (default chunks_deduped)")
	corpusCmd.AddCommand(corpusBuildCmd)
	rootCmd.AddCommand(corpusCmd)
}
