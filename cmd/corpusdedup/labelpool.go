package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/viant/corpusdedup/labelpool"
	"github.com/viant/corpusdedup/retrieval"
)

var labelpoolCmd = &cobra.Command{
	Use:   "labelpool",
	Short: "Manage benchmark label pools",
}

var labelpoolBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Merge exact and ANN results of every model into label pools",
	Long: `For every test query file and every model, retrieve the exact and ANN top-k
passages per query and merge them into label_pools/<stem>_label_pool.json.
Missing query embeddings, corpus embeddings and indexes are built first.

Pairs run in parallel (config parallelism); each read-merge-write of a pool
file holds that file's lock, so results from all models end up in it.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		only, _ := cmd.Flags().GetStringSlice("model")
		models := selectModels(cfg, only)

		passages, err := loadCorpus(cfg)
		if err != nil {
			fail("%v", err)
		}
		files, err := loadQueryFiles(cfg)
		if err != nil {
			fail("%v", err)
		}
		if _, err := embedQueries(ctx, cfg, models, files); err != nil {
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
		for _, model := range models {
			if err := r.Register(model, arts[model].Embeddings, arts[model].Index); err != nil {
				fail("%v", err)
			}
		}
		pools, err := labelpool.NewBuilder(labelpool.Options{
			OutDir:    cfg.Paths().LabelPools,
			Retriever: r,
			Queries:   queryEmbedder(cfg),
			Logger:    logger,
		})
		if err != nil {
			fail("%v", err)
		}

		var mu sync.Mutex
		var reports []*labelpool.Report
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Parallelism)
		for _, qf := range files {
			for _, model := range models {
				g.Go(func() error {
					report, err := pools.BuildForFile(gctx, qf, model)
					if err != nil {
						logger.Error("label pool failed", zap.String("file", qf.Stem), zap.String("model", model), zap.Error(err))
						return err
					}
					mu.Lock()
					reports = append(reports, report)
					mu.Unlock()
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			fail("%v", err)
		}
		for _, rep := range reports {
			if rep.Skipped > 0 {
				warn("%s/%s: %d queries without embeddings", rep.File, rep.Model, rep.Skipped)
			}
		}
		ok("%d label pool merges over %d files (recall@%d logged per pair)", len(reports), len(files), cfg.TopK)
	},
}

func init() {
	labelpoolBuildCmd.Flags().StringSlice("model", nil, "restrict to these models")
	labelpoolCmd.AddCommand(labelpoolBuildCmd)
	rootCmd.AddCommand(labelpoolCmd)
}
