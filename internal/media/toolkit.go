// Package media implements the Media-Transform Toolkit: pure functions over
// byte buffers, backed by ffmpeg subprocess invocations. Every function owns
// its own scratch.Scope for the duration of the call and releases it
// regardless of outcome, so a failed transform never leaks a temp file.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shlawgathon/sportsclips/internal/ffmpeg"
	"github.com/shlawgathon/sportsclips/internal/perrors"
	"github.com/shlawgathon/sportsclips/internal/scratch"
)

// Toolkit holds the ffmpeg binary paths and hardware-acceleration policy
// shared by every transform. One Toolkit is shared across all concurrent
// runs in the process; it holds no per-run state.
type Toolkit struct {
	FFmpegPath  string
	FFprobePath string

	HWAccelType   string
	HWAccelDevice string

	// ExtraOutputArgs is an operator-supplied raw ffmpeg output flag string
	// (config.FFmpegConfig.ExtraOutputArgs), validated once by SetExtraOutputArgs
	// and appended to every command this Toolkit builds. Left unset, no extra
	// flags are added.
	extraOutputArgs []string
}

// New creates a Toolkit bound to the given ffmpeg/ffprobe binaries.
func New(ffmpegPath, ffprobePath string) *Toolkit {
	return &Toolkit{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// SetExtraOutputArgs validates raw against ffmpeg's blocked-flag and
// shell-metacharacter checks and, if valid, applies it to every command
// this Toolkit subsequently builds. An invalid string is rejected with the
// validator's errors and leaves any previously-set args untouched.
func (t *Toolkit) SetExtraOutputArgs(raw string) error {
	if raw == "" {
		t.extraOutputArgs = nil
		return nil
	}
	result := ffmpeg.ValidateCustomFlags("", raw, "")
	if !result.Valid {
		return fmt.Errorf("media: rejecting ffmpeg.extra_output_args: %s", strings.Join(result.Errors, "; "))
	}
	t.extraOutputArgs = result.Flags
	return nil
}

func (t *Toolkit) builder() *ffmpeg.CommandBuilder {
	b := ffmpeg.NewCommandBuilder(t.FFmpegPath).HideBanner().Overwrite().LogLevel("error")
	if t.HWAccelType != "" && t.HWAccelType != "none" {
		b = b.HWAccel(t.HWAccelType)
		if t.HWAccelDevice != "" {
			b = b.HWAccelDevice(t.HWAccelDevice)
		}
	}
	if len(t.extraOutputArgs) > 0 {
		b = b.OutputArgs(t.extraOutputArgs...)
	}
	return b
}

// run executes cmd under ctx and wraps a non-zero exit as a TransformError
// carrying the captured stderr.
func run(ctx context.Context, op string, cmd *ffmpeg.Command) error {
	var stderr bytes.Buffer
	cmd.Prepare(ctx)
	if pipe, err := cmd.Stderr(); err == nil && pipe != nil {
		go func() { _, _ = stderr.ReadFrom(pipe) }()
	}
	if err := cmd.Start(ctx); err != nil {
		return perrors.NewTransformError(op, "", err)
	}
	if err := cmd.Wait(); err != nil {
		return perrors.NewTransformError(op, stderr.String(), err)
	}
	return nil
}

// writeTemp writes data to a new file inside scope and returns its path.
func writeTemp(scope *scratch.Scope, name string, data []byte) (string, error) {
	path := scope.Path(name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("media: writing %s: %w", path, err)
	}
	return path, nil
}

// Concatenate joins chunks into one MP4 via demux-mux stream copy. Zero
// chunks yields an empty buffer; one chunk is a pass-through; the transcoder
// failure fallback is the first chunk's bytes (callers decide whether that
// degraded output is acceptable).
func (t *Toolkit) Concatenate(ctx context.Context, chunks [][]byte) ([]byte, error) {
	switch len(chunks) {
	case 0:
		return nil, nil
	case 1:
		return chunks[0], nil
	}

	scope, err := scratch.NewRoot("media-concat")
	if err != nil {
		return nil, fmt.Errorf("media: concatenate: %w", err)
	}
	defer scope.Close()

	listPath := scope.Path("concat.txt")
	var listBuf bytes.Buffer
	for i, chunk := range chunks {
		name := fmt.Sprintf("in-%04d.mp4", i)
		path, err := writeTemp(scope, name, chunk)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&listBuf, "file '%s'\n", path)
	}
	if err := os.WriteFile(listPath, listBuf.Bytes(), 0o640); err != nil {
		return nil, fmt.Errorf("media: concatenate: writing concat list: %w", err)
	}

	outPath := scope.Path("out.mp4")
	cmd := t.builder().
		InputArgs("-f", "concat", "-safe", "0").
		Input(listPath).
		OutputArgs("-c", "copy").
		Output(outPath).
		Build()

	if err := run(ctx, "concatenate", cmd); err != nil {
		return chunks[0], err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return chunks[0], perrors.NewTransformError("concatenate", "", err)
	}
	return out, nil
}

// ExtractFrames decodes chunkBytes to JPEGs at fps frames per second,
// returned in order.
func (t *Toolkit) ExtractFrames(ctx context.Context, chunkBytes []byte, fps float64) ([][]byte, error) {
	if fps <= 0 {
		fps = 1.0
	}

	scope, err := scratch.NewRoot("media-frames")
	if err != nil {
		return nil, fmt.Errorf("media: extract_frames: %w", err)
	}
	defer scope.Close()

	inPath, err := writeTemp(scope, "in.mp4", chunkBytes)
	if err != nil {
		return nil, err
	}

	pattern := scope.Path("frame-%05d.jpg")
	cmd := t.builder().
		Input(inPath).
		VideoFilter(fmt.Sprintf("fps=%g", fps)).
		Output(pattern).
		Build()

	if err := run(ctx, "extract_frames", cmd); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(scope.Path("frame-*.jpg"))
	if err != nil {
		return nil, perrors.NewTransformError("extract_frames", "", err)
	}
	frames := make([][]byte, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, perrors.NewTransformError("extract_frames", "", err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}

// ExtractAudio decodes the audio track of chunkBytes to 16-bit mono PCM at
// 16 kHz. A source with no audio stream yields an empty (non-error) buffer.
func (t *Toolkit) ExtractAudio(ctx context.Context, chunkBytes []byte) ([]byte, error) {
	scope, err := scratch.NewRoot("media-audio")
	if err != nil {
		return nil, fmt.Errorf("media: extract_audio: %w", err)
	}
	defer scope.Close()

	inPath, err := writeTemp(scope, "in.mp4", chunkBytes)
	if err != nil {
		return nil, err
	}
	outPath := scope.Path("out.pcm")

	cmd := t.builder().
		Input(inPath).
		OutputArgs(
			"-vn",
			"-f", "s16le",
			"-ar", "16000",
			"-ac", "1",
		).
		Output(outPath).
		Build()

	if err := run(ctx, "extract_audio", cmd); err != nil {
		// No audio stream is reported by ffmpeg as a stream-selection error,
		// not a crash; treat any failure that leaves no output as "no audio".
		if _, statErr := os.Stat(outPath); os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, perrors.NewTransformError("extract_audio", "", err)
	}
	return data, nil
}

// RemuxAudioVideo copies videoBytes' video stream and encodes pcmBytes as
// AAC audio, preserving the video track's full duration. This intentionally
// never passes -shortest: the reference implementation's "stop at shortest
// stream" behavior truncated the output to the (possibly shorter) PCM
// commentary track; this is the fix, not the bug.
func (t *Toolkit) RemuxAudioVideo(ctx context.Context, videoBytes, pcmBytes []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = 24000
	}

	scope, err := scratch.NewRoot("media-remux")
	if err != nil {
		return nil, fmt.Errorf("media: remux_audio_video: %w", err)
	}
	defer scope.Close()

	videoPath, err := writeTemp(scope, "video.mp4", videoBytes)
	if err != nil {
		return nil, err
	}
	audioPath, err := writeTemp(scope, "audio.pcm", pcmBytes)
	if err != nil {
		return nil, err
	}
	outPath := scope.Path("out.mp4")

	cmd := t.builder().
		Input(videoPath).
		ExtraInput(audioPath,
			"-f", "s16le",
			"-ar", fmt.Sprintf("%d", sampleRate),
			"-ac", "1",
		).
		OutputArgs(
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", "aac",
			// No -shortest: the video track's full duration is preserved
			// even when the synthesized PCM commentary runs shorter.
		).
		Output(outPath).
		Build()

	if err := run(ctx, "remux_audio_video", cmd); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, perrors.NewTransformError("remux_audio_video", "", err)
	}
	return out, nil
}

// FragmentMP4 remuxes mp4Bytes to a fragmented MP4 (empty-moov,
// keyframe-fragmentation), stream-copying both tracks.
func (t *Toolkit) FragmentMP4(ctx context.Context, mp4Bytes []byte) ([]byte, error) {
	scope, err := scratch.NewRoot("media-fragment")
	if err != nil {
		return nil, fmt.Errorf("media: fragment_mp4: %w", err)
	}
	defer scope.Close()

	inPath, err := writeTemp(scope, "in.mp4", mp4Bytes)
	if err != nil {
		return nil, err
	}
	outPath := scope.Path("out.mp4")

	cmd := t.builder().
		Input(inPath).
		OutputArgs(
			"-c", "copy",
			"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		).
		Output(outPath).
		Build()

	if err := run(ctx, "fragment_mp4", cmd); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, perrors.NewTransformError("fragment_mp4", "", err)
	}
	return out, nil
}

// ProbeDuration writes mediaBytes to scratch and ffprobes its container
// duration, in seconds. Used to report a produced clip's actual rendered
// length rather than the sum of its source chunks' nominal durations.
func (t *Toolkit) ProbeDuration(ctx context.Context, mediaBytes []byte) (float64, error) {
	scope, err := scratch.NewRoot("media-probe")
	if err != nil {
		return 0, fmt.Errorf("media: probe_duration: %w", err)
	}
	defer scope.Close()

	inPath, err := writeTemp(scope, "in.mp4", mediaBytes)
	if err != nil {
		return 0, err
	}

	info, err := ffmpeg.NewProber(t.FFprobePath).ProbeSimple(ctx, inPath)
	if err != nil {
		return 0, perrors.NewTransformError("probe_duration", "", err)
	}
	return float64(info.Duration) / 1000.0, nil
}
