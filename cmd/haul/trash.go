package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haulfm/haul/pkg/haul/types"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Browse and restore trashed items",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trashed items, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		records, err := eng.Trash.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Trash is empty.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTRASHED\tSIZE\tORIGINAL PATH")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				rec.ID, rec.TrashedAt.Format("2006-01-02 15:04"), types.FormatSize(rec.Size), rec.From)
		}
		return w.Flush()
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a trashed item to its original path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Trash.Restore(args[0]); err != nil {
			return err
		}
		fmt.Println("Restored.")
		return nil
	},
}

func init() {
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd)
	rootCmd.AddCommand(trashCmd)
}
