package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/spritesheet/internal/utils"
	"github.com/spf13/cobra"
)

var composeOpts Options

var composeCmd = &cobra.Command{
	Use:   "compose <frames-dir>",
	Short: "Build a sprite sheet from the images in a directory",
	Long: `Tiles every .png, .jpg, .jpeg and .gif file in the directory, in name order,
into a sprite sheet. Without --output the sheet is written next to the
directory as <dir>_spritesheet.png.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateSheetFlags(&composeOpts, cmd.Flags().Changed); err != nil {
			return err
		}
		return runCompose(cmd.Context(), args[0], composeOpts, cmd.Flags().Changed("max-pixels"))
	},
}

func init() {
	addSheetFlags(composeCmd, &composeOpts)
	rootCmd.AddCommand(composeCmd)
}

func runCompose(ctx context.Context, dir string, opts Options, maxPixelsFlag bool) error {
	output := opts.Output
	if output == "" {
		output = utils.DefaultOutputPath(filepath.Clean(dir))
	}

	tf, closeTransform, err := buildTransform(ctx, opts)
	if err != nil {
		utils.ShowError("Frame transform unavailable", err, nil)
		return errReported
	}
	defer closeTransform()

	// Frames come from disk, so no frame source is needed.
	runner, err := newRunner(ctx, nil, opts)
	if err != nil {
		utils.ShowError("Upload unavailable", err, nil)
		return errReported
	}

	pOpts := sheetOptions(opts, maxPixelsFlag, tf)
	pOpts.Progress = newProgress().report

	fmt.Fprintf(os.Stderr, "🧩 Composing frames from %s...\n", dir)
	res, err := runner.ComposeDir(ctx, dir, output, pOpts)
	if err != nil {
		utils.ShowError("Failed to compose "+dir, err, nil)
		return errReported
	}
	printResult(res)
	return nil
}
