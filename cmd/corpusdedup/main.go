// Command corpusdedup builds a deduplicated retrieval corpus and the
// baseline label pools used to judge it.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viant/corpusdedup/config"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "corpusdedup",
	Short: "Deduplicate a text corpus and build retrieval baselines",
	Long: `corpusdedup runs the corpus pipeline stage by stage:

  dedup docs       MinHash/LSH near-duplicate removal over raw text files
  dedup chunks     embedding clustering over chunk batches
  corpus build     flatten deduplicated chunks into the ordered corpus
  queries embed    embed test queries per model
  index build      embed the corpus and build the ANN index per model
  labelpool build  merge exact and ANN results into per-query label pools
  search           ad-hoc query against one model

Every stage caches its output; re-running resumes where it stopped.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fail("%v", err)
		}
		if logger, err = newLogger(verbose); err != nil {
			fail("failed to create logger: %v", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return zc.Build()
}

func fail(format string, args ...any) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s Error: %s\n", red("✗"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func ok(format string, args ...any) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

func warn(format string, args ...any) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
