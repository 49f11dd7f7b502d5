package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haulfm/haul/pkg/haul/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run many file operations as one orchestrated batch",
	Long: `Batch operations check conflicts per item and pick an execution
strategy: sequential, parallel with a bounded worker pool, or adaptive,
which probes a few items before deciding.`,
}

var batchCpCmd = &cobra.Command{
	Use:   "cp <source>... <dest-dir>",
	Short: "Batch-copy files into a directory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, batch.NewCopy(args[:len(args)-1], args[len(args)-1]))
	},
}

var batchMvCmd = &cobra.Command{
	Use:   "mv <source>... <dest-dir>",
	Short: "Batch-move files into a directory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, batch.NewMove(args[:len(args)-1], args[len(args)-1]))
	},
}

var batchRmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Batch-delete files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, batch.NewDelete(args))
	},
}

func runBatch(cmd *cobra.Command, op *batch.Operation) error {
	strategy, _ := cmd.Flags().GetString("strategy")
	switch batch.Strategy(strategy) {
	case batch.StrategySequential, batch.StrategyParallel, batch.StrategyAdaptive:
		op.Strategy = batch.Strategy(strategy)
	default:
		return fmt.Errorf("unknown strategy %q (want sequential, parallel or adaptive)", strategy)
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	// Batch operations carry per-item counters, so a failed batch is not
	// resubmitted wholesale; rerun with the failed items instead.
	result, err := eng.Batches.Run(cmd.Context(), op, nil, progressPrinter())
	if err != nil {
		return err
	}
	return reportResult(result)
}

func init() {
	batchCmd.PersistentFlags().String("strategy", string(batch.StrategyAdaptive), "execution strategy: sequential, parallel or adaptive")

	batchCmd.AddCommand(batchCpCmd, batchMvCmd, batchRmCmd)
	rootCmd.AddCommand(batchCmd)
}
