package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haulfm/haul/pkg/haul/archive"
	"github.com/haulfm/haul/pkg/haul/types"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Create, extract and inspect archives",
	Long:  `Supported formats: zip, tar, tar.gz and tar.zst.`,
}

var archiveCreateCmd = &cobra.Command{
	Use:   "create <archive-path> <input>...",
	Short: "Create an archive from files and directories",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archivePath, inputs := args[0], args[1:]

		format := archive.Format(cmd.Flag("format").Value.String())
		if format == "" {
			detected, err := archive.DetectFormat(archivePath)
			if err != nil {
				return fmt.Errorf("cannot infer format from %q, use --format: %w", archivePath, err)
			}
			format = detected
		}
		level, _ := cmd.Flags().GetInt("level")

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := withRetry(func() (types.OperationResult, error) {
			return eng.Codec.Create(cmd.Context(), inputs, archivePath, format, level, progressPrinter())
		})
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var archiveExtractCmd = &cobra.Command{
	Use:   "extract <archive-path> [dest-dir]",
	Short: "Extract an archive",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		destDir := "."
		if len(args) == 2 {
			destDir = args[1]
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := withRetry(func() (types.OperationResult, error) {
			return eng.Codec.Extract(cmd.Context(), args[0], destDir, progressPrinter())
		})
		if err != nil {
			return err
		}
		return reportResult(result)
	},
}

var archiveListCmd = &cobra.Command{
	Use:   "list <archive-path>",
	Short: "List archive entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		names, err := eng.Codec.List(args[0])
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var archiveInfoCmd = &cobra.Command{
	Use:   "info <archive-path>",
	Short: "Show archive format, sizes and entry count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		info, err := eng.Codec.ArchiveInfo(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Path:         %s\n", info.Path)
		fmt.Printf("Format:       %s\n", info.Format)
		fmt.Printf("Entries:      %d\n", info.EntryCount)
		fmt.Printf("Compressed:   %s\n", types.FormatSize(info.CompressedSize))
		fmt.Printf("Uncompressed: %s\n", types.FormatSize(info.UncompressedSize))
		return nil
	},
}

func init() {
	archiveCreateCmd.Flags().StringP("format", "f", "", "archive format: zip, tar, tar.gz or tar.zst (default: from extension)")
	archiveCreateCmd.Flags().IntP("level", "l", 0, "compression level (0 = format default)")

	archiveCmd.AddCommand(archiveCreateCmd, archiveExtractCmd, archiveListCmd, archiveInfoCmd)
	rootCmd.AddCommand(archiveCmd)
}
