// Package imaging reassembles images relayed by the auxiliary computer and
// archives them on disk.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rocket-telemetry/internal/auxlink"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

const (
	DefaultIdleTimeout = 3 * time.Second

	pollSlice = 100 * time.Millisecond
)

// Source yields tagged image messages, as queued by the ground relay
type Source interface {
	Poll(timeout time.Duration) ([]byte, bool)
}

// Assembler joins image chunks into images. An image is complete once no
// chunk arrived for the idle timeout, or when Flush is called.
type Assembler struct {
	dir         string
	telemetry   telemetry.Provider
	annotator   *Annotator
	idleTimeout time.Duration
	logger      *slog.Logger

	buf      bytes.Buffer
	next     int
	lastSeen time.Time
}

func WithLogger(logger *slog.Logger) func(*Assembler) {
	return func(a *Assembler) {
		a.logger = logger
	}
}

func WithIdleTimeout(d time.Duration) func(*Assembler) {
	return func(a *Assembler) {
		a.idleTimeout = d
	}
}

// WithTelemetry captions images with the latest telemetry
func WithTelemetry(p telemetry.Provider) func(*Assembler) {
	return func(a *Assembler) {
		a.telemetry = p
	}
}

// NewAssembler archives images into dir, creating it if needed
func NewAssembler(dir string, options ...func(*Assembler)) (*Assembler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	annotator, err := NewAnnotator()
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}

	a := Assembler{
		dir:         dir,
		annotator:   annotator,
		idleTimeout: DefaultIdleTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&a)
	}

	a.next, err = nextIndex(dir)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

func nextIndex(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "image_*.jpg"))
	if err != nil {
		return 0, fmt.Errorf("listing images: %w", err)
	}

	next := 1
	for _, m := range matches {
		var n int
		if _, err := fmt.Sscanf(filepath.Base(m), "image_%d.jpg", &n); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// Add appends an image chunk, tag already stripped
func (a *Assembler) Add(chunk []byte) {
	a.buf.Write(chunk)
	a.lastSeen = time.Now()
}

// Pending returns the number of bytes of the unfinished image
func (a *Assembler) Pending() int {
	return a.buf.Len()
}

// Flush finishes the current image and returns the path of the raw file.
// It returns an empty path when there is nothing to flush.
func (a *Assembler) Flush() (string, error) {
	if a.buf.Len() == 0 {
		return "", nil
	}

	data := bytes.Clone(a.buf.Bytes())
	a.buf.Reset()

	index := a.next
	a.next++

	path := filepath.Join(a.dir, fmt.Sprintf("image_%d.jpg", index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}

	a.logger.Info("image received", slog.String("path", path), slog.String("size", humanize.Bytes(uint64(len(data)))))

	if err := a.annotate(index, data); err != nil {
		// the raw image is archived regardless
		a.logger.Warn("image not annotated", slog.String("path", path), slog.String("error", err.Error()))
	}

	return path, nil
}

func (a *Assembler) annotate(index int, data []byte) (err error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	caption := Caption{
		Index:    index,
		Size:     len(data),
		Received: time.Now().Format(time.DateTime),
	}
	if a.telemetry != nil {
		caption.Frame = a.telemetry.Get()
	}

	img := toRGBA(src)
	if err = a.annotator.Annotate(img, caption); err != nil {
		return fmt.Errorf("annotating image: %w", err)
	}

	out, err := os.Create(filepath.Join(a.dir, fmt.Sprintf("image_%d_annotated.png", index)))
	if err != nil {
		return fmt.Errorf("creating annotated image: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = png.Encode(out, img); err != nil {
		return fmt.Errorf("encoding annotated image: %w", err)
	}
	return nil
}

// Run assembles images from src until ctx is cancelled. Messages without the
// image tag are ignored. The unfinished image is flushed on return.
func (a *Assembler) Run(ctx context.Context, src Source) error {
	defer func() {
		if _, err := a.Flush(); err != nil {
			a.logger.Error("flushing image", slog.String("error", err.Error()))
		}
	}()

	slice := min(pollSlice, a.idleTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, ok := src.Poll(slice)
		if ok {
			if len(msg) == 0 || msg[0] != auxlink.TagImage {
				a.logger.Debug("ignoring untagged image message", slog.Int("size", len(msg)))
				continue
			}
			a.Add(msg[1:])
			continue
		}

		if a.buf.Len() > 0 && time.Since(a.lastSeen) >= a.idleTimeout {
			if _, err := a.Flush(); err != nil {
				a.logger.Error("flushing image", slog.String("error", err.Error()))
			}
		}
	}
}
