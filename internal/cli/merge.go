package cli

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/state"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge batch files already on disk into the final CSV",
	Long: `Merge consolidates the batch files of a completed (or interrupted)
download without fetching anything. Batch paths come from the resume
state file when present, otherwise from the batch files found in the
output directory.`,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	stateMgr := state.NewManager(cfg.Output.Dir)

	st, err := stateMgr.Load()
	if err != nil {
		return err
	}

	var batchPaths []string
	if st != nil {
		batchPaths = st.BatchesWritten
	} else {
		batchPaths, err = filepath.Glob(filepath.Join(cfg.Output.Dir, "batch_*.csv"))
		if err != nil {
			return fmt.Errorf("scan batch files: %w", err)
		}
		// Zero-padded names sort in batch order
		sort.Strings(batchPaths)
	}

	if len(batchPaths) == 0 {
		return fmt.Errorf("no batch files found in %s", cfg.Output.Dir)
	}

	return finalize(batchPaths, stateMgr)
}
