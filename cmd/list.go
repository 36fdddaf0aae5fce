package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the sprite sheets in the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command) error {
	if err := requireDB(); err != nil {
		return err
	}
	sheets, err := DB.ListSheets(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sheets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(sheets) == 0 {
		fmt.Fprintln(out, "No sprite sheets found in database.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tFRAMES\tGRID\tSIZE\tOUTPUT\tCREATED")
	fmt.Fprintln(w, "--\t-----\t------\t----\t----\t------\t-------")

	for _, s := range sheets {
		fmt.Fprintf(w, "%s\t%s\t%d\t%dx%d\t%dx%d\t%s\t%s\n",
			s.ID, s.Label, s.FrameCount, s.Columns, s.Rows, s.SheetWidth, s.SheetHeight,
			s.OutputPath, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
