package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/spritesheet/internal/ffmpeg"
	"github.com/andresmejia3/spritesheet/internal/pipeline"
	"github.com/andresmejia3/spritesheet/internal/sprite"
	"github.com/andresmejia3/spritesheet/internal/storage"
	"github.com/andresmejia3/spritesheet/internal/transform"
	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/andresmejia3/spritesheet/internal/utils"
	"github.com/andresmejia3/spritesheet/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options holds the flags shared by generate and compose.
type Options struct {
	Output       string
	FPS          float64
	Percent      float64
	Width        int
	Height       int
	Columns      int
	Start        float64
	End          float64
	MaxFrames    int
	JSON         bool
	Timestamps   bool
	RemoveBG     bool
	ColorKey     string
	KeyTolerance int
	Filter       string
	MaxPixels    int64
	InMemory     bool
	Jobs         int
	Upload       bool
	Label        string
}

var genOpts Options

var generateCmd = &cobra.Command{
	Use:   "generate [input]",
	Short: "Build a sprite sheet from a video, or from every video in a directory",
	Long: `Samples frames from each video with ffmpeg and tiles them into a PNG sprite sheet.

The input defaults to the current directory. Without --output each sheet is
written next to its video as <name>_spritesheet.png. With several inputs,
--output names a directory when it has no extension and a filename suffix
otherwise (walk.mp4 + atlas.png -> walk_atlas.png).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		input := "."
		if len(args) == 1 {
			input = args[0]
		}
		if err := validateGenerateFlags(&genOpts, cmd.Flags().Changed); err != nil {
			return err
		}
		return runGenerate(cmd.Context(), input, genOpts, cmd.Flags().Changed("max-pixels"))
	},
}

func init() {
	addSheetFlags(generateCmd, &genOpts)
	generateCmd.Flags().Float64VarP(&genOpts.FPS, "fps", "f", 10, "Frames sampled per second of video")
	generateCmd.Flags().Float64Var(&genOpts.Start, "start", 0, "Start offset in seconds")
	generateCmd.Flags().Float64Var(&genOpts.End, "end", 0, "End offset in seconds (0 = end of video)")
	generateCmd.Flags().IntVar(&genOpts.MaxFrames, "max-frames", 0, "Stop after this many frames (0 = no limit)")
	generateCmd.Flags().BoolVar(&genOpts.Timestamps, "timestamps", false, "Add each frame's video time to the JSON metadata")
	generateCmd.Flags().BoolVar(&genOpts.InMemory, "in-memory", false, "Stream frames through memory instead of a temp directory")
	generateCmd.Flags().IntVarP(&genOpts.Jobs, "jobs", "j", 1, "Videos processed in parallel")
	rootCmd.AddCommand(generateCmd)
}

// addSheetFlags registers the layout and output flags.
func addSheetFlags(c *cobra.Command, o *Options) {
	c.Flags().StringVarP(&o.Output, "output", "o", "", "Output PNG path (see help for batch naming)")
	c.Flags().Float64VarP(&o.Percent, "percent", "p", 0, "Scale frames to this percentage of their size")
	c.Flags().IntVarP(&o.Width, "width", "w", 0, "Frame width in pixels (keeps aspect ratio without --height)")
	c.Flags().IntVarP(&o.Height, "height", "H", 0, "Frame height in pixels (keeps aspect ratio without --width)")
	c.Flags().IntVarP(&o.Columns, "columns", "c", 0, "Grid columns (default: near-square)")
	c.Flags().BoolVar(&o.JSON, "json", false, "Write <output>.json frame metadata next to the sheet")
	c.Flags().BoolVar(&o.RemoveBG, "remove-bg", false, "Remove frame backgrounds with the rembg python worker")
	c.Flags().StringVar(&o.ColorKey, "color-key", "", `Make a colour transparent: "#rrggbb" or "auto" (top-left pixel)`)
	c.Flags().IntVar(&o.KeyTolerance, "key-tolerance", 16, "Per-channel tolerance for --color-key (0-255)")
	c.Flags().StringVar(&o.Filter, "filter", "catmullrom", "Resampling filter: catmullrom or bilinear")
	c.Flags().Int64Var(&o.MaxPixels, "max-pixels", 0, "Largest allowed sheet in pixels (0 = 16384x16384, negative = unlimited)")
	c.Flags().BoolVar(&o.Upload, "upload", false, "Upload the sheet to the MinIO bucket from MINIO_* settings")
	c.Flags().StringVar(&o.Label, "label", "", "Registry label for the sheet")
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidInput, fmt.Sprintf(format, a...))
}

// validateGenerateFlags rejects flag values before any subprocess starts.
// changed reports whether the user set a flag explicitly.
func validateGenerateFlags(opts *Options, changed func(string) bool) error {
	if opts.FPS <= 0 || math.IsNaN(opts.FPS) || math.IsInf(opts.FPS, 0) {
		return invalid("--fps must be positive, got %v", opts.FPS)
	}
	if opts.Start < 0 || opts.End < 0 {
		return invalid("--start and --end must not be negative")
	}
	if opts.End > 0 && opts.End <= opts.Start {
		return invalid("--end (%vs) must be after --start (%vs)", opts.End, opts.Start)
	}
	if opts.MaxFrames < 0 {
		return invalid("--max-frames must not be negative")
	}
	if opts.Jobs < 1 {
		return invalid("--jobs must be at least 1, got %d", opts.Jobs)
	}
	return validateSheetFlags(opts, changed)
}

func validateSheetFlags(opts *Options, changed func(string) bool) error {
	if changed("percent") && (opts.Percent <= 0 || math.IsNaN(opts.Percent) || math.IsInf(opts.Percent, 0)) {
		return invalid("--percent must be positive, got %v", opts.Percent)
	}
	if changed("width") && opts.Width <= 0 {
		return invalid("--width must be positive, got %d", opts.Width)
	}
	if changed("height") && opts.Height <= 0 {
		return invalid("--height must be positive, got %d", opts.Height)
	}
	if changed("columns") && opts.Columns <= 0 {
		return invalid("--columns must be positive, got %d", opts.Columns)
	}
	if opts.RemoveBG && opts.ColorKey != "" {
		return invalid("--remove-bg and --color-key are mutually exclusive")
	}
	if _, err := sprite.ParseFilter(opts.Filter); err != nil {
		return err
	}
	if opts.ColorKey != "" {
		if _, err := transform.ParseColorKey(opts.ColorKey, opts.KeyTolerance); err != nil {
			return err
		}
	}
	return nil
}

// resolveInputs expands a directory into its videos.
func resolveInputs(input string) ([]string, error) {
	st, err := os.Stat(input)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", types.ErrInputNotFound, input)
	}
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return []string{input}, nil
	}

	videos, err := utils.FindVideoFiles(input)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no videos found in %s", types.ErrEmptyInput, input)
	}
	return videos, nil
}

// buildTransform resolves the per-frame transform. The returned close func
// is never nil.
func buildTransform(ctx context.Context, opts Options) (sprite.Transform, func(), error) {
	noop := func() {}
	switch {
	case opts.RemoveBG:
		cfg := worker.Config{
			Python:      Cfg.PythonPath,
			Script:      Cfg.RembgWorkerScript,
			ReadTimeout: Cfg.RembgWorkerTimeout,
		}
		if err := worker.Probe(ctx, cfg); err != nil {
			return nil, noop, err
		}
		fmt.Fprintln(os.Stderr, "🧠 Starting background removal worker...")
		w, err := worker.NewRembgWorker(ctx, 0, cfg, Log.Named("rembg"))
		if err != nil {
			return nil, noop, err
		}
		return w, func() {
			if err := w.Close(); err != nil {
				Log.Debug("rembg worker exit", zap.Error(err))
			}
		}, nil
	case opts.ColorKey != "":
		k, err := transform.ParseColorKey(opts.ColorKey, opts.KeyTolerance)
		if err != nil {
			return nil, noop, err
		}
		return k, noop, nil
	}
	return nil, noop, nil
}

// newRunner attaches the optional registry and uploader.
func newRunner(ctx context.Context, source pipeline.FrameSource, opts Options) (*pipeline.Runner, error) {
	r := &pipeline.Runner{Source: source, Logger: Log.Named("pipeline")}
	if DB != nil {
		r.Registry = DB
	}
	if !opts.Upload {
		return r, nil
	}

	if !Cfg.UploadEnabled() {
		return nil, fmt.Errorf("%w: --upload needs MINIO_ENDPOINT", types.ErrConfiguration)
	}
	s, err := storage.NewStorage(storage.StorageConfig{
		Endpoint:  Cfg.MinIOEndpoint,
		AccessKey: Cfg.MinIOAccessKey,
		SecretKey: Cfg.MinIOSecretKey,
		UseSSL:    Cfg.MinIOUseSSL,
		Bucket:    Cfg.MinIOBucket,
		Prefix:    Cfg.MinIOPrefix,
	}, Log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	r.Uploader = s
	return r, nil
}

// sheetOptions maps flags onto pipeline options. An explicit --max-pixels
// wins over SPRITESHEET_MAX_PIXELS.
func sheetOptions(opts Options, maxPixelsFlag bool, tf sprite.Transform) pipeline.Options {
	scaler, _ := sprite.ParseFilter(opts.Filter) // validated earlier
	maxPixels := Cfg.MaxPixels
	if maxPixelsFlag {
		maxPixels = opts.MaxPixels
	}
	return pipeline.Options{
		Extract: types.ExtractRequest{
			Rate:      opts.FPS,
			Start:     seconds(opts.Start),
			End:       seconds(opts.End),
			MaxFrames: opts.MaxFrames,
		},
		Width:      opts.Width,
		Height:     opts.Height,
		Percent:    opts.Percent,
		Columns:    opts.Columns,
		MaxPixels:  maxPixels,
		Scaler:     scaler,
		Transform:  tf,
		WriteJSON:  opts.JSON,
		Timestamps: opts.Timestamps,
		Label:      opts.Label,
		TempDir:    Cfg.TempDir,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// runGenerate orchestrates the batch: tool checks, transform startup, the
// pipeline run and the summary.
func runGenerate(ctx context.Context, input string, opts Options, maxPixelsFlag bool) error {
	inputs, err := resolveInputs(input)
	if err != nil {
		utils.ShowError("Cannot read input", err, nil)
		return errReported
	}
	outputs := utils.OutputPaths(inputs, opts.Output)

	source := ffmpeg.NewSource(Cfg.FFmpegPath, Cfg.FFprobePath, Log.Named("ffmpeg"))
	source.InMemory = opts.InMemory
	if err := source.CheckTools(); err != nil {
		utils.ShowError("ffmpeg is not available", err, nil)
		return errReported
	}

	// Capabilities are checked before the first frame is decoded.
	tf, closeTransform, err := buildTransform(ctx, opts)
	if err != nil {
		utils.ShowError("Frame transform unavailable", err, nil)
		return errReported
	}
	defer closeTransform()

	runner, err := newRunner(ctx, source, opts)
	if err != nil {
		utils.ShowError("Upload unavailable", err, nil)
		return errReported
	}

	pOpts := sheetOptions(opts, maxPixelsFlag, tf)
	jobs := min(opts.Jobs, len(inputs))
	if jobs == 1 {
		pOpts.Progress = newProgress().report
	}

	fmt.Fprintf(os.Stderr, "🎞️  Generating %d sprite sheet(s) at %v fps...\n", len(inputs), opts.FPS)
	sum, err := runner.RunBatch(ctx, inputs, outputs, pOpts, jobs)
	for _, o := range sum.Outcomes {
		if o.Err != nil {
			utils.ShowError("Failed to process "+o.Input, o.Err, nil)
			continue
		}
		printResult(o.Result)
	}
	if err != nil {
		return err
	}

	if len(inputs) > 1 {
		fmt.Fprintf(os.Stderr, "\n🏁 Batch Complete. %d succeeded, %d failed.\n", sum.Succeeded(), sum.Failed())
	}
	if sum.Failed() > 0 {
		return errReported
	}
	return nil
}

func printResult(res *pipeline.Result) {
	p := res.Plan
	fmt.Fprintf(os.Stderr, "✅ %s -> %s (%d frames, %dx%d grid, %dx%d px, %s)\n",
		filepath.Base(res.Input), res.Output, p.FrameCount, p.Columns, p.Rows,
		p.SheetWidth, p.SheetHeight, res.Took.Round(time.Millisecond))
	if res.Sidecar != "" {
		fmt.Fprintf(os.Stderr, "   📄 %s\n", res.Sidecar)
	}
	for _, key := range res.ObjectKeys {
		fmt.Fprintf(os.Stderr, "   ☁️  %s/%s\n", Cfg.MinIOBucket, key)
	}
	if DB != nil {
		fmt.Fprintf(os.Stderr, "   🗂️  registered as %s\n", res.ID)
	}
}

// progress draws one bar per input while inputs run one at a time.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress() *progress { return &progress{} }

func (p *progress) report(input string, done, total int) {
	if done == 1 || p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("🧩 "+filepath.Base(input)),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
	if done == total {
		_ = p.bar.Finish()
	}
}
