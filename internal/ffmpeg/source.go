package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/andresmejia3/spritesheet/internal/sprite"
	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/andresmejia3/spritesheet/internal/utils"
	"go.uber.org/zap"
)

const megabyte = 1024 * 1024

// FramePattern names extracted frames; zero padding keeps lexical order temporal.
const FramePattern = "frame_%05d.png"

// Source probes and decodes videos with the ffprobe and ffmpeg binaries.
type Source struct {
	FFmpegPath  string
	FFprobePath string
	// InMemory streams MJPEG frames over a pipe instead of writing PNGs to disk.
	InMemory bool
	Logger   *zap.Logger
}

// NewSource returns a Source using the given binaries.
func NewSource(ffmpegPath, ffprobePath string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Logger: logger}
}

// CheckTools verifies both binaries can be found.
func (s *Source) CheckTools() error {
	for _, bin := range []string{s.FFmpegPath, s.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s not found in PATH (https://ffmpeg.org/download.html)", types.ErrConfiguration, bin)
		}
	}
	return nil
}

// ffprobeOutput is the subset of `ffprobe -show_format -show_streams` we use.
type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the primary video stream's geometry, duration and frame rate.
func (s *Source) Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	cmd := utils.NewSafeCommand(ctx, s.FFprobePath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	out, err := cmd.Output()
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: ffprobe %s: %v %s", types.ErrProbeFailure, filepath.Base(path), err, cmd.Logs())
	}
	info, err := ParseProbe(out)
	if err != nil {
		return types.VideoInfo{}, err
	}

	s.Logger.Debug("video probed",
		zap.String("path", path),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("duration", info.Duration),
		zap.Float64("fps", info.FrameRate),
	)
	return info, nil
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (types.VideoInfo, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(data, &res); err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: unparseable ffprobe output: %v", types.ErrProbeFailure, err)
	}

	for _, st := range res.Streams {
		if st.CodecType != "video" {
			continue
		}
		info := types.VideoInfo{Width: st.Width, Height: st.Height}
		if st.RFrameRate != "" {
			fps, err := utils.ParseFrameRate(st.RFrameRate)
			if err != nil {
				return types.VideoInfo{}, fmt.Errorf("%w: %v", types.ErrProbeFailure, err)
			}
			info.FrameRate = fps
		}
		if res.Format.Duration != "" {
			d, err := strconv.ParseFloat(res.Format.Duration, 64)
			if err != nil {
				return types.VideoInfo{}, fmt.Errorf("%w: duration %q", types.ErrProbeFailure, res.Format.Duration)
			}
			info.Duration = d
		}
		return info, nil
	}
	return types.VideoInfo{}, fmt.Errorf("%w: no video stream", types.ErrProbeFailure)
}

// Streams reports whether Extract decodes in memory and ignores its dir.
func (s *Source) Streams() bool { return s.InMemory }

// Extract samples frames from path at req.Rate. On disk the frames are
// written to dir as FramePattern; in memory mode dir is unused.
func (s *Source) Extract(ctx context.Context, path, dir string, req types.ExtractRequest) (sprite.Frames, error) {
	if s.InMemory {
		return s.stream(ctx, path, req)
	}

	args := ExtractArgs(path, req, filepath.Join(dir, FramePattern))
	cmd := utils.NewSafeCommand(ctx, s.FFmpegPath, args...)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, &DecodeError{Err: err, Logs: cmd.Logs()}
	}

	frames, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(frames)

	s.Logger.Debug("frames extracted",
		zap.String("path", path),
		zap.Int("count", len(frames)),
		zap.Duration("took", time.Since(start)),
	)
	return sprite.FileFrames(frames), nil
}

// stream decodes an MJPEG image2pipe into memory, one frame per JPEG.
func (s *Source) stream(ctx context.Context, path string, req types.ExtractRequest) (sprite.Frames, error) {
	args := append(samplingArgs(path, req), "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")

	cmd := utils.NewSafeCommand(ctx, s.FFmpegPath, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &DecodeError{Err: err, Logs: cmd.Logs()}
	}

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	var frames sprite.MemoryFrames
	var decodeErr error
	for scanner.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			decodeErr = fmt.Errorf("%w: frame %d: %v", types.ErrDecodeFailure, len(frames), err)
			break
		}
		frames = append(frames, img)
	}
	if decodeErr == nil {
		if err := scanner.Err(); err != nil {
			decodeErr = fmt.Errorf("%w: frame scanner: %v", types.ErrDecodeFailure, err)
		}
	}
	if decodeErr != nil {
		// Kill the child so Wait does not block on a full pipe.
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return nil, decodeErr
	}

	if err := cmd.Wait(); err != nil {
		return nil, &DecodeError{Err: err, Logs: cmd.Logs()}
	}

	s.Logger.Debug("frames streamed", zap.String("path", path), zap.Int("count", len(frames)))
	return frames, nil
}

// ExtractArgs builds the ffmpeg argument list for a sampling request.
func ExtractArgs(path string, req types.ExtractRequest, output string) []string {
	return append(samplingArgs(path, req), output)
}

func samplingArgs(path string, req types.ExtractRequest) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if req.Start > 0 {
		args = append(args, "-ss", seconds(req.Start))
	}
	args = append(args, "-i", path)
	if w := req.Window(); w > 0 {
		args = append(args, "-t", seconds(w))
	}
	args = append(args, "-vf", "fps="+strconv.FormatFloat(req.Rate, 'f', -1, 64))
	if req.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(req.MaxFrames))
	}
	return args
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// DecodeError carries ffmpeg's stderr alongside the exit error.
type DecodeError struct {
	Err  error
	Logs string
}

func (e *DecodeError) Error() string {
	if e.Logs == "" {
		return fmt.Sprintf("%v: ffmpeg: %v", types.ErrDecodeFailure, e.Err)
	}
	return fmt.Sprintf("%v: ffmpeg: %v: %s", types.ErrDecodeFailure, e.Err, e.Logs)
}

func (e *DecodeError) Unwrap() []error { return []error{types.ErrDecodeFailure, e.Err} }
