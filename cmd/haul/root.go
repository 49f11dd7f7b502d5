package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haulfm/haul/pkg/haul/config"
	"github.com/haulfm/haul/pkg/haul/engine"
	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/retry"
	"github.com/haulfm/haul/pkg/haul/types"
)

var rootCmd = &cobra.Command{
	Use:   "haul",
	Short: "Copy, move, delete and archive files with verification and progress",
	Long: `Haul performs file operations with byte-verified copies, recoverable
deletion, conflict resolution and archive support.

Examples:
  haul cp report.pdf backup/        # Verified copy
  haul mv *.log /var/archive/       # Move (rename fast path on same volume)
  haul rm old-builds/               # Recoverable delete (trash)
  haul rm -P scratch/               # Permanent delete
  haul batch cp --strategy adaptive src/* dest/
  haul archive create -f tar.zst backup.tzst project/
  haul trash list                   # Browse trashed items`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("chunk-size", "", "streaming chunk size (e.g. 64K, 1M)")
	rootCmd.PersistentFlags().IntP("retries", "r", 0, "retry attempts for transient failures")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("chunk_size_flag", rootCmd.PersistentFlags().Lookup("chunk-size"))
	_ = viper.BindPFlag("retries", rootCmd.PersistentFlags().Lookup("retries"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openEngine loads configuration, applies flag overrides, initializes
// logging and assembles the engine.
func openEngine() (*engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if override := viper.GetString("chunk_size_flag"); override != "" {
		cfg.ChunkSize = override
	}

	level := cfg.Logging.Level
	if viper.GetBool("verbose") {
		level = "debug"
	}
	logPath := cfg.Logging.Path
	if logPath == "" {
		logPath = logging.DefaultLogPath()
	}
	if err := logging.Init(logging.Config{
		Level:      level,
		Path:       logPath,
		Components: cfg.Logging.Components,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}

	return engine.Open(cfg)
}

// withRetry wraps fn in the retry policy selected by the --retries flag.
// Zero retries runs fn once. Unsuccessful results are resubmitted as
// transient failures; contract violations fail fast. The last result is
// reported even when attempts are exhausted, so per-item errors survive.
func withRetry(fn func() (types.OperationResult, error)) (types.OperationResult, error) {
	retries := viper.GetInt("retries")
	if retries <= 0 {
		return fn()
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = retries + 1

	var last types.OperationResult
	var attempted bool
	err := retry.Do(rootCmd.Context(), policy, func() error {
		result, err := fn()
		if err != nil {
			return err
		}
		last, attempted = result, true
		if !result.Success {
			return retry.Transient(errors.New(result.Message))
		}
		return nil
	})
	if err != nil && !attempted {
		return types.OperationResult{}, err
	}
	return last, nil
}

// progressPrinter returns a callback rendering progress to stderr, or nil
// in quiet mode.
func progressPrinter() progress.Callback {
	if viper.GetBool("quiet") {
		return nil
	}
	var lastPercent int = -1
	return func(p progress.Progress) {
		percent := int(p.Percent())
		if percent == lastPercent {
			return
		}
		lastPercent = percent
		fmt.Fprintf(os.Stderr, "\r%3d%%  %s", percent, p.CurrentItem)
	}
}

// reportResult prints the outcome and converts failure into a command
// error so the process exits non-zero.
func reportResult(result types.OperationResult) error {
	if !viper.GetBool("quiet") {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	fmt.Printf("%s (%s, %s)\n", result.Message, types.FormatSize(result.BytesProcessed), result.Duration.Round(time.Millisecond))

	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	if !result.Success {
		return fmt.Errorf("%d items failed", len(result.Errors))
	}
	return nil
}
