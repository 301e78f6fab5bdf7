// Package cli wires the downloader's cobra commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/internal/config"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/catalog"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

var (
	cfgPath   string
	outputDir string
	logLevel  string
	logPretty bool

	cfg *config.Config
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "symbol-downloader",
	Short: "Download the DTN IQFeed symbol catalog",
	Long: `symbol-downloader pulls the complete DTN IQFeed symbol catalog through
the paginated SymbolSearch API, persists each page as a batch CSV, and
merges the batches into a deduplicated catalog file.

Interrupted runs resume from a checkpoint: every completed batch is
recorded in download_state.json, so a new invocation continues exactly
where the previous one stopped without re-fetching or skipping pages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		// Flags beat config file and env
		if cmd.Flags().Changed("output-dir") {
			loaded.Output.Dir = outputDir
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("pretty") {
			loaded.Log.Pretty = logPretty
		}

		logging.Setup(logging.Config{
			Level:  logging.LogLevel(loaded.Log.Level),
			Pretty: loaded.Log.Pretty,
			Output: os.Stderr,
		})

		cfg = loaded
		return nil
	},
}

// Execute runs the CLI. The process exits nonzero on any command error,
// which is what the external scheduler keys off.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger := logging.NewLogger("cli")
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: ./config.yml)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "dtn_symbols", "directory for batch and output files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human-readable console logs")
}

// newCatalogClient builds the catalog client from the loaded config.
func newCatalogClient() (*catalog.Client, error) {
	clientCfg := catalog.DefaultConfig()
	clientCfg.BaseURL = cfg.Catalog.BaseURL
	clientCfg.PageLimit = cfg.Catalog.PageLimit
	clientCfg.Timeout = cfg.Catalog.Timeout
	clientCfg.Retry = catalog.RetryConfig{
		MaxAttempts:       cfg.Catalog.Retry.MaxAttempts,
		InitialBackoff:    cfg.Catalog.Retry.InitialBackoff,
		MaxBackoff:        cfg.Catalog.Retry.MaxBackoff,
		BackoffMultiplier: 2.0,
	}
	return catalog.New(clientCfg)
}
