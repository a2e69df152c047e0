package marquee

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultFrameDuration is used for animation frames that declare no delay.
const DefaultFrameDuration = 100 * time.Millisecond

// Frame is one decoded picture and how long to show it.
type Frame struct {
	Image    image.Image
	Duration time.Duration
}

// LoadFrames decodes the image at path. Animated GIFs yield one fully
// composited frame per GIF frame; everything else yields a single frame.
func LoadFrames(path string) ([]Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return DecodeFrames(data)
}

// DecodeFrames is LoadFrames for an in-memory file.
func DecodeFrames(data []byte) ([]Frame, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if format == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode gif: %w", err)
		}

		return compositeGIF(g), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}

	return []Frame{{Image: img, Duration: DefaultFrameDuration}}, nil
}

// compositeGIF replays GIF frames onto a canvas, honouring the disposal
// method of each frame, and snapshots the canvas after every frame.
func compositeGIF(g *gif.GIF) []Frame {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}

	canvas := image.NewRGBA(bounds)
	frames := make([]Frame, 0, len(g.Image))

	for i, pal := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.RGBA
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		draw.Draw(canvas, pal.Bounds(), pal, pal.Bounds().Min, draw.Over)

		d := DefaultFrameDuration
		if i < len(g.Delay) && g.Delay[i] > 0 {
			d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}

		frames = append(frames, Frame{Image: cloneRGBA(canvas), Duration: d})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, pal.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}

	return frames
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)

	return dst
}

// fit produces a width x height NRGBA image from src, either scaled to fit
// or center cropped. Areas a crop leaves uncovered are transparent.
func fit(src image.Image, width, height int, rescale bool) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	sb := src.Bounds()

	if sb.Dx() == width && sb.Dy() == height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)

		return dst
	}

	if rescale {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)

		return dst
	}

	left := floorDiv(sb.Dx()-width, 2)
	top := floorDiv(sb.Dy()-height, 2)
	draw.Draw(dst, dst.Bounds(), src, sb.Min.Add(image.Pt(left, top)), draw.Src)

	return dst
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}
