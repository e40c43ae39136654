// Package capture records a timefree stream to a local file with ffmpeg.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/catalog"
	"github.com/radikoarchive/radiko-archiver/internal/radiko"
)

// ErrOutputExists is returned when the target file is already present.
var ErrOutputExists = errors.New("output already exists")

const (
	// DefaultGrace is how long ffmpeg gets to exit after an interrupt.
	DefaultGrace = 8 * time.Second
	extension    = ".m4a"
	partSuffix   = ".part"
	maxStderr    = 4 << 10
)

// Config controls the ffmpeg invocation.
type Config struct {
	FFmpegPath string
	OutputDir  string
	// Grace bounds the time between the interrupt and a forced kill.
	Grace time.Duration
}

// Capturer runs one ffmpeg process per capture.
type Capturer struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Capturer, filling defaults.
func New(cfg Config, logger *zap.Logger) *Capturer {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{cfg: cfg, logger: logger.Named("capture")}
}

var titleReplacer = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_")

// OutputPath is the deterministic file for p: {ft}_{station}_{title}.m4a.
func (c *Capturer) OutputPath(p catalog.Program) string {
	name := fmt.Sprintf("%s_%s_%s%s", p.StartStamp(), titleReplacer.Replace(p.StationID), titleReplacer.Replace(p.Title), extension)
	return filepath.Join(c.cfg.OutputDir, name)
}

// Capture records src into OutputPath(p) and returns the path. ffmpeg writes
// to a temp file next to the output, which is linked into place only once
// ffmpeg succeeds, so an output created concurrently by another process is
// never overwritten or removed. When ctx is canceled ffmpeg is interrupted,
// then killed if it is still running after the grace period; the returned
// error wraps ctx.Err().
func (c *Capturer) Capture(ctx context.Context, src radiko.Source, p catalog.Program) (string, error) {
	out := c.OutputPath(p)
	if _, err := os.Stat(out); err == nil {
		return out, fmt.Errorf("%w: %s", ErrOutputExists, out)
	} else if !errors.Is(err, os.ErrNotExist) {
		return out, fmt.Errorf("stat output: %w", err)
	}
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return out, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.cfg.OutputDir, "."+filepath.Base(out)+".*"+partSuffix)
	if err != nil {
		return out, fmt.Errorf("create temp output: %w", err)
	}
	part := tmp.Name()
	if err := tmp.Close(); err != nil {
		c.removePartial(part, c.logger)
		return out, fmt.Errorf("close temp output: %w", err)
	}

	logger := c.logger.With(zap.Int64("program_id", p.ID), zap.String("output", out))
	defer c.removePartial(part, logger)

	if err := c.run(ctx, src, part, logger); err != nil {
		return out, err
	}
	// Link fails if out appeared meanwhile; the other file is left alone.
	if err := os.Link(part, out); err != nil {
		if errors.Is(err, os.ErrExist) {
			return out, fmt.Errorf("%w: %s", ErrOutputExists, out)
		}
		return out, fmt.Errorf("publish output: %w", err)
	}
	logger.Info("capture finished")
	return out, nil
}

// run executes ffmpeg writing to part.
func (c *Capturer) run(ctx context.Context, src radiko.Source, part string, logger *zap.Logger) error {
	cmd := exec.Command(c.cfg.FFmpegPath, Args(src, part)...)
	stderr := &limitedBuffer{limit: maxStderr}
	cmd.Stderr = stderr
	cmd.WaitDelay = c.cfg.Grace

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	logger.Info("capture started", zap.Int("pid", cmd.Process.Pid))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = c.stop(cmd, done, logger)
		return fmt.Errorf("capture interrupted: %w", errors.Join(ctx.Err(), err))
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// stop interrupts the process and starts a watchdog that kills it once the
// grace period expires.
func (c *Capturer) stop(cmd *exec.Cmd, done <-chan error, logger *zap.Logger) error {
	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn("interrupt ffmpeg failed", zap.Error(err))
	}
	watchdog := time.NewTimer(c.cfg.Grace)
	defer watchdog.Stop()
	select {
	case <-done:
		return nil
	case <-watchdog.C:
		logger.Warn("ffmpeg ignored interrupt, killing", zap.Duration("grace", c.cfg.Grace))
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill ffmpeg: %w", err)
		}
		<-done
		return nil
	}
}

func (c *Capturer) removePartial(part string, logger *zap.Logger) {
	if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove partial output failed", zap.Error(err))
	}
}

// Args builds the ffmpeg argument list for src and out.
func Args(src radiko.Source, out string) []string {
	args := []string{"-nostdin", "-loglevel", "error", "-y"}
	if h := headerBlock(src.Headers); h != "" {
		args = append(args, "-headers", h)
	}
	return append(args,
		"-copytb", "1",
		"-i", src.URL,
		"-f", "mp4",
		"-c", "copy",
		out,
	)
}

func headerBlock(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	return b.String()
}

type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
