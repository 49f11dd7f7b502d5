package main

import (
	"github.com/spf13/cobra"

	"github.com/haulfm/haul/pkg/haul/fileops"
	"github.com/haulfm/haul/pkg/haul/types"
)

var cpCmd = &cobra.Command{
	Use:   "cp <source>... <dest-dir>",
	Short: "Copy files or directory trees with verification",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		sources, destDir := args[:len(args)-1], args[len(args)-1]
		result, err := withRetry(func() (types.OperationResult, error) {
			return eng.Executor.Copy(cmd.Context(), sources, destDir, progressPrinter())
		})
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <source>... <dest-dir>",
	Short: "Move files, renaming in place when on the same volume",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		sources, destDir := args[:len(args)-1], args[len(args)-1]
		result, err := withRetry(func() (types.OperationResult, error) {
			return eng.Executor.Move(cmd.Context(), sources, destDir, progressPrinter())
		})
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete files, recoverably by default",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		permanent, _ := cmd.Flags().GetBool("permanent")
		result, err := eng.Executor.Delete(cmd.Context(), args, fileops.DeleteOptions{Permanent: permanent}, progressPrinter())
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename a file or directory within its parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := eng.Executor.Rename(args[0], args[1])
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

func init() {
	rmCmd.Flags().BoolP("permanent", "P", false, "bypass the trash and delete outright")

	rootCmd.AddCommand(cpCmd, mvCmd, rmCmd, renameCmd)
}
