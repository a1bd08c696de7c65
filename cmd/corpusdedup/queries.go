package main

import (
	"context"

	"github.com/spf13/cobra"
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Manage test query embeddings",
}

var queriesEmbedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed every test query file with every model",
	Long: `For each model and each test_queries/*.json file, embed
"Instruct: <task prefix>\nQuery: <user_query>" for every record and cache
the matrix under query_embeddings/<model>/<stem>.mat. The task is the file
stem before the first underscore. Cached files are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		only, _ := cmd.Flags().GetStringSlice("model")
		models := selectModels(cfg, only)
		files, err := loadQueryFiles(cfg)
		if err != nil {
			fail("%v", err)
		}
		if len(files) == 0 {
			warn("no query files in %s", cfg.Paths().TestQueries)
			return
		}
		computed, err := embedQueries(context.Background(), cfg, models, files)
		if err != nil {
			fail("%v", err)
		}
		ok("%d query files x %d models: %d embedded, %d cached", len(files), len(models), computed, len(files)*len(models)-computed)
	},
}

func init() {
	queriesEmbedCmd.Flags().StringSlice("model", nil, "restrict to these models")
	queriesCmd.AddCommand(queriesEmbedCmd)
	rootCmd.AddCommand(queriesCmd)
}
