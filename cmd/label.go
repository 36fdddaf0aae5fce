package cmd

import (
	"fmt"

	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <sheet-id> <label>",
	Short: "Assign a label to a registered sprite sheet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := parseSheetID(args[0])
		if err != nil {
			return err
		}
		if err := requireDB(); err != nil {
			return err
		}

		if err := DB.LabelSheet(cmd.Context(), id, args[1]); err != nil {
			return fmt.Errorf("failed to label sheet: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Sheet %s labeled as '%s'\n", id, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func parseSheetID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid sheet ID %q", types.ErrInvalidInput, s)
	}
	return id, nil
}
