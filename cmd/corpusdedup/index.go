package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/viant/corpusdedup/store"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage corpus embeddings and ANN indexes",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the corpus and build the ANN index per model",
	Long: `Embed the ordered corpus with every model (or those given with --model) and
build each model's ANN index. Existing embedding caches and indexes under
baseline_indexes are restored instead of rebuilt unless --rebuild is set.

A corrupt index or cache stops the command; rebuild it explicitly.

Examples:
  corpusdedup index build
  corpusdedup index build --model BAAI/bge-m3 --rebuild`,
	Run: func(cmd *cobra.Command, args []string) {
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		only, _ := cmd.Flags().GetStringSlice("model")
		passages, err := loadCorpus(cfg)
		if err != nil {
			fail("%v", err)
		}
		b, err := newIndexer(cfg, selectModels(cfg, only))
		if err != nil {
			fail("%v", err)
		}
		arts, err := b.BuildAll(context.Background(), passages, rebuild)
		if err != nil {
			fail("%v", err)
		}
		names := make([]string, 0, len(arts))
		for name := range arts {
			names = append(names, name)
		}
		sort.Strings(names)
		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, name := range names {
			a := arts[name]
			state := "restored"
			if a.Built {
				state = "built"
			}
			ok("%s: %d vectors (%s) %s", name, a.Index.Len(), state, gray(b.StorePath(name)))
		}
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted index of every model",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		models := cfg.ModelNames()
		b, err := newIndexer(cfg, models)
		if err != nil {
			fail("%v", err)
		}
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, name := range models {
			info, err := b.Status(ctx, name)
			switch {
			case errors.Is(err, store.ErrNotFound):
				fmt.Printf("  %s %s: not built\n", yellow("○"), name)
			case err != nil:
				fail("%s: %v", name, err)
			default:
				ok("%s: %s, %d x %d, embeddings %s, updated %s", name, info.Kind, info.Size, info.Dim, info.Source, info.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
		}
	},
}

var indexDropCmd = &cobra.Command{
	Use:   "drop <model>...",
	Short: "Delete the persisted index and embedding cache of models",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		models := selectModels(cfg, args)
		b, err := newIndexer(cfg, models)
		if err != nil {
			fail("%v", err)
		}
		for _, name := range models {
			if err := b.Drop(context.Background(), name); err != nil {
				fail("%v", err)
			}
			ok("dropped %s", name)
		}
	},
}

func init() {
	indexBuildCmd.Flags().Bool("rebuild", false, "recompute embeddings and indexes")
	indexBuildCmd.Flags().StringSlice("model", nil, "restrict to these models")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexDropCmd)
	rootCmd.AddCommand(indexCmd)
}
