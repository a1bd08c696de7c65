package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/viant/corpusdedup/embedding"
	"github.com/viant/corpusdedup/retrieval"
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Query the corpus with one model",
	Long: `Embed the query text with the task instruction and print the exact and ANN
top-k passages side by side. The corpus index must already be built or is
built on first use.

Example:
  corpusdedup search --model hash-256 --task QA "what protects tenants from eviction"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		model, _ := cmd.Flags().GetString("model")
		task, _ := cmd.Flags().GetString("task")
		if model == "" {
			model = cfg.ModelNames()[0]
		}
		models := selectModels(cfg, []string{model})

		passages, err := loadCorpus(cfg)
		if err != nil {
			fail("%v", err)
		}
		b, err := newIndexer(cfg, models)
		if err != nil {
			fail("%v", err)
		}
		arts, err := b.BuildAll(ctx, passages, false)
		if err != nil {
			fail("%v", err)
		}
		r := retrieval.New(passages, cfg.TopK, retrieval.WithLogger(logger))
		if err := r.Register(model, arts[model].Embeddings, arts[model].Index); err != nil {
			fail("%v", err)
		}

		enc, err := cfg.Encoder(model)
		if err != nil {
			fail("%v", err)
		}
		query := embedding.Instruction(cfg.TaskPrefixes[task], strings.Join(args, " "))
		qm, _, err := embedding.Embed(ctx, enc, []string{query}, cfg.QueryBatch(model))
		if err != nil {
			fail("%v", err)
		}
		res, err := r.Retrieve(model, qm)
		if err != nil {
			fail("%v", err)
		}
		hits := res.Queries[0]
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		for _, list := range []struct {
			name string
			hits []retrieval.Hit
		}{{"exact", hits.Exact}, {"ann", hits.ANN}} {
			fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== %s top-%d ===", list.name, cfg.TopK)))
			for rank, h := range list.hits {
				fmt.Printf("%2d. [%d] %.4f  %s\n", rank+1, h.Index, h.Score, preview(r.Passage(h.Index), 100))
			}
		}
		fmt.Println()
		ok("recall@%d of ann vs exact: %.2f", cfg.TopK, hits.Recall())
	},
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

func init() {
	searchCmd.Flags().String("model", "", "model id (default: first configured)")
	searchCmd.Flags().String("task", "QA", "task whose instruction prefixes the query")
	rootCmd.AddCommand(searchCmd)
}
