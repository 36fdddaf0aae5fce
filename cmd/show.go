package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var showMetadata bool

var showCmd = &cobra.Command{
	Use:   "show <sheet-id>",
	Short: "Show a registered sprite sheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runShow(cmd, args[0])
	},
}

func init() {
	showCmd.Flags().BoolVar(&showMetadata, "json", false, "Print only the sheet's frame metadata")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, arg string) error {
	id, err := parseSheetID(arg)
	if err != nil {
		return err
	}
	if err := requireDB(); err != nil {
		return err
	}

	s, err := DB.GetSheet(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showMetadata {
		var buf bytes.Buffer
		if err := json.Indent(&buf, s.Metadata, "", "  "); err != nil {
			return fmt.Errorf("stored metadata: %w", err)
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(out)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", s.ID)
	fmt.Fprintf(w, "LABEL\t%s\n", s.Label)
	fmt.Fprintf(w, "SOURCE\t%s\n", s.SourcePath)
	fmt.Fprintf(w, "OUTPUT\t%s\n", s.OutputPath)
	fmt.Fprintf(w, "FRAMES\t%d (%dx%d px each)\n", s.FrameCount, s.FrameWidth, s.FrameHeight)
	fmt.Fprintf(w, "GRID\t%d columns x %d rows\n", s.Columns, s.Rows)
	fmt.Fprintf(w, "SHEET\t%dx%d px\n", s.SheetWidth, s.SheetHeight)
	if len(s.ObjectKeys) > 0 {
		fmt.Fprintf(w, "OBJECTS\t%s\n", strings.Join(s.ObjectKeys, ", "))
	}
	fmt.Fprintf(w, "CREATED\t%s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	return w.Flush()
}
