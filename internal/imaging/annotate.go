package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

const (
	dpi     float64 = 72
	size    float64 = 14
	spacing float64 = 1.2
	margin  int     = 4
)

var bandColor = color.RGBA{A: 160}

// Caption is what gets written onto an image
type Caption struct {
	Index    int
	Size     int
	Received string
	Frame    *telemetry.Telemetry
}

func (c Caption) lines() []string {
	lines := []string{
		fmt.Sprintf("Image %d, %s", c.Index, humanize.Bytes(uint64(c.Size))),
		"Received: " + c.Received,
	}
	if c.Frame == nil {
		return append(lines, "No telemetry")
	}

	phase := "unknown"
	if c.Frame.Phase != nil {
		phase = c.Frame.Phase.String()
	}
	lines = append(lines, "Phase: "+phase)

	if c.Frame.Altitude != nil {
		lines = append(lines, fmt.Sprintf("Altitude: %.2f m", *c.Frame.Altitude))
	}
	if c.Frame.Aux != nil && *c.Frame.Aux != "" {
		lines = append(lines, "Aux: "+*c.Frame.Aux)
	}
	return lines
}

type Annotator struct {
	context *freetype.Context
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)
	context.SetHinting(font.HintingFull)

	return &Annotator{context: context}, nil
}

// Annotate draws the caption over a dark band at the bottom of img
func (a *Annotator) Annotate(img *image.RGBA, caption Caption) error {
	lines := caption.lines()

	bounds := img.Bounds()
	lineSpacing := size * spacing
	lineHeight := int(lineSpacing)
	top := bounds.Max.Y - len(lines)*lineHeight - 2*margin
	if top < bounds.Min.Y {
		top = bounds.Min.Y
	}

	band := image.Rect(bounds.Min.X, top, bounds.Max.X, bounds.Max.Y)
	draw.Draw(img, band, image.NewUniform(bandColor), image.Point{}, draw.Over)

	a.context.SetClip(bounds)
	a.context.SetDst(img)

	pt := freetype.Pt(bounds.Min.X+margin, top+margin+int(size))
	for _, s := range lines {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return fmt.Errorf("drawing %q: %w", s, err)
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}

func toRGBA(src image.Image) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	draw.Copy(dst, dst.Bounds().Min, src, src.Bounds(), draw.Src, nil)
	return dst
}
