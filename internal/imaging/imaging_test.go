package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fixedProvider struct {
	frame *telemetry.Telemetry
}

func (p fixedProvider) Get() *telemetry.Telemetry {
	return p.frame
}

func TestAssemblerFlush(t *testing.T) {
	dir := t.TempDir()
	data := testJPEG(t)

	phase := flight.Parachute
	alt := 120.0
	a, err := NewAssembler(dir, WithTelemetry(fixedProvider{&telemetry.Telemetry{Phase: &phase, Altitude: &alt}}))
	require.NoError(t, err)

	path, err := a.Flush()
	require.NoError(t, err)
	assert.Empty(t, path, "nothing to flush")

	for rest := data; len(rest) > 0; {
		n := min(239, len(rest))
		a.Add(rest[:n])
		rest = rest[n:]
	}
	assert.Equal(t, len(data), a.Pending())

	path, err = a.Flush()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "image_1.jpg"), path)
	assert.Zero(t, a.Pending())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, raw)

	f, err := os.Open(filepath.Join(dir, "image_1_annotated.png"))
	require.NoError(t, err)
	defer f.Close()

	annotated, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 120), annotated.Bounds())
}

func TestAssemblerKeepsUndecodableImage(t *testing.T) {
	dir := t.TempDir()
	a, err := NewAssembler(dir)
	require.NoError(t, err)

	a.Add([]byte("not a jpeg"))
	path, err := a.Flush()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(dir, "image_1_annotated.png"))
}

func TestAssemblerContinuesNumbering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image_4.jpg"), []byte("x"), 0o644))

	a, err := NewAssembler(dir)
	require.NoError(t, err)

	a.Add([]byte("y"))
	path, err := a.Flush()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "image_5.jpg"), path)
}

type chunkSource struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *chunkSource) Poll(timeout time.Duration) ([]byte, bool) {
	s.mu.Lock()
	if len(s.chunks) == 0 {
		s.mu.Unlock()
		time.Sleep(timeout)
		return nil, false
	}
	defer s.mu.Unlock()
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, true
}

func (s *chunkSource) push(chunks ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
}

func TestAssemblerRunSplitsOnIdle(t *testing.T) {
	dir := t.TempDir()
	a, err := NewAssembler(dir, WithIdleTimeout(50*time.Millisecond))
	require.NoError(t, err)

	src := &chunkSource{}
	src.push([]byte("Ifirst "), []byte("Ihalf"), []byte("Gignored"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx, src)
	}()

	first := filepath.Join(dir, "image_1.jpg")
	require.Eventually(t, func() bool {
		_, err := os.Stat(first)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	src.push([]byte("Isecond"))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "image_2.jpg"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	raw, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "first half", string(raw))
}

func TestCaptionLines(t *testing.T) {
	assert.Equal(t, []string{"Image 2, 1.5 kB", "Received: now", "No telemetry"},
		Caption{Index: 2, Size: 1500, Received: "now"}.lines())

	phase := flight.Landed
	alt := 3.5
	aux := "IDLE"
	lines := Caption{Index: 1, Size: 10, Received: "now", Frame: &telemetry.Telemetry{Phase: &phase, Altitude: &alt, Aux: &aux}}.lines()
	assert.Equal(t, []string{"Image 1, 10 B", "Received: now", "Phase: LANDED", "Altitude: 3.50 m", "Aux: IDLE"}, lines)
}
