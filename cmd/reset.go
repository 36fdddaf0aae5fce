package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/spritesheet/internal/sprite"
	"github.com/spf13/cobra"
)

var (
	resetFiles bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop the sheet registry tables",
	Long:  "Drops every registry table. With --files the registered sheets and their JSON sidecars are deleted from disk first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := requireDB(); err != nil {
			return err
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if resetFiles && (resetYes || confirm(reader, out, "⚠️  Are you sure you want to delete every registered sheet file?")) {
			sheets, err := DB.ListSheets(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sheets: %w", err)
			}
			fmt.Fprintln(out, "🗑️  Clearing Sheet Files...")
			for _, s := range sheets {
				removeFile(s.OutputPath)
				removeFile(sprite.SidecarPath(s.OutputPath))
			}
		}

		if !resetYes && !confirm(reader, out, "⚠️  Are you sure you want to DROP all database tables?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		fmt.Fprintln(out, "🗑️  Clearing Database...")
		if err := DB.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}

		fmt.Fprintln(out, "✨ Registry Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Also delete registered sheet PNGs and JSON sidecars")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
