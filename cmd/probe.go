package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/spritesheet/internal/ffmpeg"
	"github.com/andresmejia3/spritesheet/internal/utils"
	"github.com/spf13/cobra"
)

var (
	probeJSON bool
	probeFPS  float64
)

var probeCmd = &cobra.Command{
	Use:   "probe <video>",
	Short: "Show a video's size, duration and frame rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runProbe(cmd, args[0])
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "Print JSON instead of a table")
	probeCmd.Flags().Float64VarP(&probeFPS, "fps", "f", 10, "Sampling rate used for the frame estimate")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return errReported
	}

	source := ffmpeg.NewSource(Cfg.FFmpegPath, Cfg.FFprobePath, Log.Named("ffmpeg"))
	info, err := source.Probe(cmd.Context(), path)
	if err != nil {
		utils.ShowError("Failed to probe video", err, nil)
		return errReported
	}

	if probeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "FILE\t%s\n", path)
	fmt.Fprintf(w, "SIZE\t%dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "DURATION\t%s\n", fmtTime(info.Duration))
	fmt.Fprintf(w, "FRAME RATE\t%.3f fps\n", info.FrameRate)
	if probeFPS > 0 && info.Duration > 0 {
		fmt.Fprintf(w, "FRAMES @ %v fps\t~%d\n", probeFPS, int(math.Ceil(info.Duration*probeFPS)))
	}
	return w.Flush()
}

// fmtTime converts seconds into HH:MM:SS.mmm.
func fmtTime(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
