package transcoder

import (
	"fmt"
	"strconv"
	"strings"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
)

// framePattern is the numbered-artifact name the extraction subprocess
// writes and the frame collector parses. Changing it breaks the scratch
// directory contract.
const framePattern = "frame_%04d.jpg"

// BuilderConfig carries everything needed to assemble tool invocations.
// Codec, preset and scale are static per session and never re-evaluated
// mid-run.
type BuilderConfig struct {
	Binary   string
	LogLevel string

	Target domain.StreamTarget

	FrameRate   int
	JPEGQuality int // 0-100 knob, mapped onto the tool's quantizer scale

	VideoCodec string
	Preset     string
	CRF        int
	Scale      string // optional WxH
}

// ffmpegBuilder assembles ffmpeg argv for the two output modes. Frame
// extraction runs with low-latency input flags and quits on SIGINT;
// recording quits over stdin so the container index gets written.
type ffmpegBuilder struct {
	cfg BuilderConfig
}

func NewFFmpegBuilder(cfg BuilderConfig) ports.CommandBuilder {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "error"
	}
	return &ffmpegBuilder{cfg: cfg}
}

func (b *ffmpegBuilder) FrameExtraction(scratchDir string) ports.Command {
	args := []string{"-hide_banner", "-nostats", "-loglevel", b.cfg.LogLevel, "-nostdin"}
	args = append(args, b.rtspArgs()...)
	args = append(args, "-fflags", "nobuffer", "-i", b.cfg.Target.URL)
	args = append(args,
		"-vf", fmt.Sprintf("fps=%d", b.cfg.FrameRate),
		"-q:v", strconv.Itoa(jpegQScale(b.cfg.JPEGQuality)),
		"-y", framePattern,
	)
	return ports.Command{
		Path: b.cfg.Binary,
		Args: args,
		Dir:  scratchDir,
		Quit: domain.QuitSignal,
	}
}

func (b *ffmpegBuilder) Recording(outputPath string) ports.Command {
	args := []string{"-hide_banner", "-nostats", "-loglevel", b.cfg.LogLevel}
	args = append(args, b.rtspArgs()...)
	args = append(args, "-i", b.cfg.Target.URL)
	args = append(args,
		"-c:v", b.cfg.VideoCodec,
		"-preset", b.cfg.Preset,
		"-crf", strconv.Itoa(b.cfg.CRF),
	)
	if b.cfg.Scale != "" {
		args = append(args, "-vf", "scale="+b.cfg.Scale)
	}
	args = append(args, "-an", "-y", outputPath)
	return ports.Command{
		Path: b.cfg.Binary,
		Args: args,
		Quit: domain.QuitStdin,
	}
}

func (b *ffmpegBuilder) Tool() string {
	return b.cfg.Binary
}

// rtspArgs emits the RTSP demuxer options. They are private demuxer
// options, so they only apply to rtsp inputs; ffmpeg rejects them for
// other schemes.
func (b *ffmpegBuilder) rtspArgs() []string {
	if !strings.HasPrefix(b.cfg.Target.URL, "rtsp") {
		return nil
	}
	transport := b.cfg.Target.Transport
	if transport == "" {
		transport = "tcp"
	}
	args := []string{"-rtsp_transport", transport}
	if b.cfg.Target.ConnectTimeout > 0 {
		args = append(args, "-timeout", strconv.FormatInt(b.cfg.Target.ConnectTimeout.Microseconds(), 10))
	}
	return args
}

// jpegQScale maps the 0-100 quality knob onto ffmpeg's inverted 2-31
// JPEG quantizer scale.
func jpegQScale(quality int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return 31 - quality*29/100
}
